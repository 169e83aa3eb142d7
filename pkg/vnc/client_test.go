package vnc

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/breeze-rmm/vncclient/internal/rfb"
	"github.com/breeze-rmm/vncclient/internal/signalbus"
)

// nopConn's Read always fails with io.EOF, so a Start call in these tests
// exercises Start's own guards without the handshake goroutine spinning
// or blocking forever on a connection that never produces real bytes.
type nopConn struct{ net.Conn }

func (nopConn) Read([]byte) (int, error)  { return 0, io.EOF }
func (nopConn) Write([]byte) (int, error) { return 0, nil }
func (nopConn) Close() error              { return nil }

func TestEventKindMatchesSignalbusKindOrder(t *testing.T) {
	cases := []struct {
		sig  signalbus.Kind
		want EventKind
	}{
		{signalbus.KindAuthChooseType, EventAuthChooseType},
		{signalbus.KindCredentialNeeded, EventCredentialNeeded},
		{signalbus.KindCertificateDecision, EventCertificateDecision},
		{signalbus.KindInitialized, EventInitialized},
		{signalbus.KindServerCutText, EventServerCutText},
	}
	for _, c := range cases {
		if got := EventKind(c.sig); got != c.want {
			t.Fatalf("EventKind(%v) = %v, want %v", c.sig, got, c.want)
		}
	}
}

func TestCredentialFieldMatchesSignalbusOrder(t *testing.T) {
	if CredentialField(signalbus.CredentialPassword) != CredentialPassword {
		t.Fatal("CredentialPassword order mismatch")
	}
	if CredentialField(signalbus.CredentialIdentity) != CredentialIdentity {
		t.Fatal("CredentialIdentity order mismatch")
	}
}

func TestResolveCredentialUsesPreSuppliedMap(t *testing.T) {
	c := newClient(nopConn{})
	c.SetCredential(CredentialPassword, "hunter2")

	got := c.resolveCredential(signalbus.CredentialPassword)
	if got != "hunter2" {
		t.Fatalf("resolveCredential = %q, want hunter2", got)
	}
	if got := c.resolveCredential(signalbus.CredentialUsername); got != "" {
		t.Fatalf("resolveCredential(Username) = %q, want empty", got)
	}
}

func TestResolveChoiceFallsBackToFirstOffered(t *testing.T) {
	c := newClient(nopConn{})
	if got := c.resolveChoice(nil, []int{2, 18, 19}); got != 2 {
		t.Fatalf("resolveChoice fallback = %d, want 2", got)
	}
	if got := c.resolveChoice(nil, nil); got != 0 {
		t.Fatalf("resolveChoice on empty offered = %d, want 0", got)
	}

	picked := c.resolveChoice(func(offered []int) int { return offered[len(offered)-1] }, []int{2, 18, 19})
	if picked != 19 {
		t.Fatalf("resolveChoice with fn = %d, want 19", picked)
	}
}

func TestDispatchRespondsToCertificateDecisionWithRejectByDefault(t *testing.T) {
	c := newClient(nopConn{})
	go c.dispatch()

	reply, err := c.bus.Ask(context.Background(), signalbus.Signal{Kind: signalbus.KindCertificateDecision, Reason: "untrusted root"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if reply.Proceed {
		t.Fatal("expected default certificate decision to reject")
	}
}

func TestDispatchInvokesRegisteredHandlerForReportOnlyEvents(t *testing.T) {
	c := newClient(nopConn{})
	received := make(chan Event, 1)
	c.On(EventBell, func(ev Event) { received <- ev })
	go c.dispatch()

	c.bus.Notify(context.Background(), signalbus.Signal{Kind: signalbus.KindBell})

	select {
	case ev := <-received:
		if ev.Kind != EventBell {
			t.Fatalf("Kind = %v, want EventBell", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}
}

func TestStartRequiresFramebuffer(t *testing.T) {
	c := newClient(nopConn{})
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected Start without SetFramebuffer to error")
	}
}

type discardFramebuffer struct{}

func (discardFramebuffer) Width() int                                        { return 0 }
func (discardFramebuffer) Height() int                                       { return 0 }
func (discardFramebuffer) Resize(int, int)                                   {}
func (discardFramebuffer) RemoteFormat() rfb.PixelFormat                     { return rfb.DefaultPixelFormat }
func (discardFramebuffer) SetRemoteFormat(rfb.PixelFormat)                   {}
func (discardFramebuffer) PerfectFormatMatch(rfb.PixelFormat) bool           { return false }
func (discardFramebuffer) RowStride() int                                    { return 0 }
func (discardFramebuffer) Bytes() []byte                                     { return nil }
func (discardFramebuffer) Blit([]byte, rfb.PixelFormat, int, int, int, int, int) {}
func (discardFramebuffer) Fill(uint32, int, int, int, int)                  {}
func (discardFramebuffer) CopyRect(int, int, int, int, int, int)            {}
func (discardFramebuffer) SetPixelAt(uint32, int, int)                      {}
func (discardFramebuffer) SetColorMapEntry(int, uint16, uint16, uint16)     {}

var _ rfb.Framebuffer = discardFramebuffer{}

func TestStartRejectsSecondCall(t *testing.T) {
	c := newClient(nopConn{})
	c.SetFramebuffer(discardFramebuffer{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected second Start call to error")
	}
	c.Close()
}
