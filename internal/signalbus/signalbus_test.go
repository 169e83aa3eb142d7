package signalbus

import (
	"context"
	"testing"
	"time"
)

func TestAskBlocksUntilRespond(t *testing.T) {
	bus := New(4)
	ctx := context.Background()

	go func() {
		s := <-bus.Signals()
		if s.Kind != KindAuthChooseType {
			t.Errorf("expected KindAuthChooseType, got %v", s.Kind)
		}
		Respond(s, Reply{AuthType: 2})
	}()

	reply, err := bus.Ask(ctx, Signal{Kind: KindAuthChooseType, OfferedAuthTypes: []int{1, 2}})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if reply.AuthType != 2 {
		t.Fatalf("AuthType = %d, want 2", reply.AuthType)
	}
}

func TestAskRespectsContextCancellation(t *testing.T) {
	bus := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Nobody reads from bus.Signals() or replies, so Ask must time out via ctx.
	if _, err := bus.Ask(ctx, Signal{Kind: KindCredentialNeeded}); err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestNotifyDoesNotBlockOnReply(t *testing.T) {
	bus := New(1)
	ctx := context.Background()

	bus.Notify(ctx, Signal{Kind: KindConnected})

	select {
	case s := <-bus.Signals():
		if s.Kind != KindConnected {
			t.Fatalf("expected KindConnected, got %v", s.Kind)
		}
	default:
		t.Fatal("expected queued Connected signal")
	}
}

func TestRespondIsNoOpForReportOnlySignal(t *testing.T) {
	// Must not panic or block when called on a signal with no reply channel.
	Respond(Signal{Kind: KindDisconnected}, Reply{})
}
