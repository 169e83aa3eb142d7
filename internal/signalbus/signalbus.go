// Package signalbus implements the Need/Have bridge between the session
// goroutine and its host: whenever the handshake needs something only the
// embedder can supply — which auth type to use, a password, whether to
// trust an unfamiliar certificate — it emits a Signal and blocks on a reply
// channel until the host answers. This replaces the source's
// callback-in-the-middle-of-the-state-machine pattern (see SPEC_FULL.md's
// "Credential collection" redesign note) with an explicit request/response
// round trip that is easy to reason about and to unit test: a Need is a
// value, and so is its Have.
package signalbus

import (
	"context"

	"github.com/breeze-rmm/vncclient/internal/cursor"
	"github.com/breeze-rmm/vncclient/internal/rfb"
)

// Kind identifies what a Signal is asking for or reporting.
type Kind int

const (
	// KindAuthChooseType asks the host to pick one auth type from Offered.
	KindAuthChooseType Kind = iota
	// KindAuthChooseSubtype asks the host to pick a VeNCrypt/legacy-TLS subauth.
	KindAuthChooseSubtype
	// KindCredentialNeeded asks the host for a username/password/identity.
	KindCredentialNeeded
	// KindCertificateDecision asks the host whether to proceed past a
	// certificate validation failure it has been informed of (used only
	// when the embedder opts into interactive trust decisions; the default
	// session policy answers this automatically with "reject").
	KindCertificateDecision
	// KindConnected reports the session reached the Initialization state
	// successfully. No reply is read for report-only signals.
	KindConnected
	// KindAuthFailure reports a failed authentication, carrying the
	// server's reason string if one was sent.
	KindAuthFailure
	// KindDisconnected reports the session ended, carrying the sticky
	// error if it ended abnormally.
	KindDisconnected

	// KindAuthUnsupported reports that none of the server's offered auth
	// types are usable by this client.
	KindAuthUnsupported
	// KindInitialized reports the session completed Initialization and is
	// about to enter its message loop.
	KindInitialized
	// KindError reports a sticky session-ending error that isn't better
	// described by KindAuthFailure/KindAuthUnsupported.
	KindError
	// KindFramebufferUpdate reports one FramebufferUpdate message was
	// fully applied to the framebuffer.
	KindFramebufferUpdate
	// KindDesktopResize reports a DesktopResize pseudo-encoding rectangle.
	KindDesktopResize
	// KindPixelFormatChanged reports a WMVi pseudo-encoding rectangle.
	KindPixelFormatChanged
	// KindCursorChanged reports a RichCursor/XCursor pseudo-encoding
	// rectangle.
	KindCursorChanged
	// KindPointerModeChanged reports a PointerChange pseudo-encoding
	// rectangle (absolute vs. relative pointer motion).
	KindPointerModeChanged
	// KindLedState reports a LedState pseudo-encoding rectangle.
	KindLedState
	// KindBell reports a server Bell message.
	KindBell
	// KindServerCutText reports a ServerCutText message.
	KindServerCutText
)

// Signal is one request (or, for report-only kinds, one notification) sent
// from the session to the host.
type Signal struct {
	Kind Kind

	// Populated for KindAuthChooseType.
	OfferedAuthTypes []int

	// Populated for KindAuthChooseSubtype.
	OfferedSubtypes []int

	// Populated for KindCredentialNeeded: which field is being requested.
	CredentialField CredentialField

	// Populated for KindAuthFailure / KindDisconnected / KindError /
	// KindServerCutText (as plain text).
	Reason string
	Err    error

	// Populated for KindDesktopResize.
	Width, Height int
	// Populated for KindPixelFormatChanged.
	PixelFormat rfb.PixelFormat
	// Populated for KindCursorChanged.
	Cursor *cursor.Cursor
	// Populated for KindPointerModeChanged.
	Absolute bool
	// Populated for KindLedState.
	LEDs byte

	reply chan Reply
}

// CredentialField names which piece of identity KindCredentialNeeded wants.
type CredentialField int

const (
	CredentialUsername CredentialField = iota
	CredentialPassword
	CredentialIdentity
)

// Reply carries the host's answer back to the session goroutine.
type Reply struct {
	AuthType    int
	Subtype     int
	Credential  string
	Proceed     bool
}

// Bus is the synchronous channel pair the session and host use to exchange
// Signals and Replies. One Bus per session; not safe for concurrent Notify
// or Ask calls from multiple goroutines, since the session itself is
// single-threaded by design.
type Bus struct {
	signals chan Signal
	bufSize int
}

// New creates a Bus. bufSize bounds how many report-only signals (Connected,
// AuthFailure, Disconnected) can be queued before Notify blocks; requests
// that expect a Reply always block regardless of bufSize, since the
// session cannot proceed without an answer.
func New(bufSize int) *Bus {
	if bufSize < 1 {
		bufSize = 1
	}
	return &Bus{signals: make(chan Signal, bufSize), bufSize: bufSize}
}

// Signals returns the channel the host reads from to receive Signals. The
// host must call Respond for every Signal that carries a non-nil reply
// channel (Respond is a no-op for report-only signals), or the session
// goroutine blocks forever.
func (b *Bus) Signals() <-chan Signal {
	return b.signals
}

// emit sends a report-only signal (no reply expected) and returns
// immediately once queued, or when ctx is done.
func (b *Bus) emit(ctx context.Context, s Signal) {
	select {
	case b.signals <- s:
	case <-ctx.Done():
	}
}

// Notify sends a report-only signal such as Connected or Disconnected.
func (b *Bus) Notify(ctx context.Context, s Signal) {
	s.reply = nil
	b.emit(ctx, s)
}

// Ask sends a Signal expecting a Reply and blocks until the host answers or
// ctx is cancelled.
func (b *Bus) Ask(ctx context.Context, s Signal) (Reply, error) {
	s.reply = make(chan Reply, 1)
	select {
	case b.signals <- s:
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
	select {
	case r := <-s.reply:
		return r, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// Respond answers a Signal previously received from Signals(). It is a
// no-op if the Signal was report-only (had no reply channel).
func Respond(s Signal, r Reply) {
	if s.reply == nil {
		return
	}
	s.reply <- r
}
