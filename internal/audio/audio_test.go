package audio

import (
	"sync"
	"testing"
	"time"
)

type fakeSink struct {
	mu    sync.Mutex
	calls [][]byte
}

func (f *fakeSink) PushSamples(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, data)
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestAccumulatorFlushesOnOverflow(t *testing.T) {
	sink := &fakeSink{}
	a := NewAccumulator(sink)

	a.Append(make([]byte, SampleCapacity-10))
	if sink.count() != 0 {
		t.Fatalf("unexpected flush before overflow")
	}
	a.Append(make([]byte, 20))
	if sink.count() != 1 {
		t.Fatalf("expected one flush on overflow, got %d", sink.count())
	}
}

func TestAccumulatorFlushesOnIdleTimer(t *testing.T) {
	sink := &fakeSink{}
	a := NewAccumulator(sink)
	a.Append([]byte{1, 2, 3})

	deadline := time.Now().Add(2 * FlushInterval)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("expected idle flush, got %d calls", sink.count())
	}
}

func TestAccumulatorCloseFlushesRemainder(t *testing.T) {
	sink := &fakeSink{}
	a := NewAccumulator(sink)
	a.Append([]byte{9, 9})
	a.Close()
	if sink.count() != 1 {
		t.Fatalf("expected flush on close, got %d", sink.count())
	}
}

func TestAccumulatorNilSinkDiscardsData(t *testing.T) {
	a := NewAccumulator(nil)
	a.Append([]byte{1, 2, 3})
	a.Flush() // must not panic with a nil sink
}
