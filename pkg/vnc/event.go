package vnc

import (
	"github.com/breeze-rmm/vncclient/internal/cursor"
	"github.com/breeze-rmm/vncclient/internal/rfb"
	"github.com/breeze-rmm/vncclient/internal/signalbus"
)

// EventKind names what an Event reports or, for the four Choose/Needed/
// Decision kinds, asks the embedder to decide. The values are defined in
// the same order as internal/signalbus.Kind so translating one to the
// other is a plain conversion (see newEvent) rather than a lookup table.
type EventKind int

const (
	EventAuthChooseType EventKind = iota
	EventAuthChooseSubtype
	EventCredentialNeeded
	EventCertificateDecision
	EventConnected
	EventAuthFailure
	EventDisconnected
	EventAuthUnsupported
	EventInitialized
	EventError
	EventFramebufferUpdate
	EventDesktopResize
	EventPixelFormatChanged
	EventCursorChanged
	EventPointerModeChanged
	EventLedState
	EventBell
	EventServerCutText
)

// CredentialField names which piece of identity EventCredentialNeeded is
// asking for. Defined in the same order as signalbus.CredentialField.
type CredentialField int

const (
	CredentialUsername CredentialField = iota
	CredentialPassword
	CredentialIdentity
)

// Event is one notification (or, for the Choose/Needed/Decision kinds, one
// request) delivered to a registered Handler. Only the fields relevant to
// Kind are populated; see each EventKind's doc comment in signalbus.Kind
// for which.
type Event struct {
	Kind EventKind

	OfferedAuthTypes []int
	OfferedSubtypes  []int
	CredentialField  CredentialField

	Reason string
	Err    error

	Width, Height int
	PixelFormat   rfb.PixelFormat
	Cursor        *cursor.Cursor
	Absolute      bool
	LEDs          byte
}

func newEvent(s signalbus.Signal) Event {
	return Event{
		Kind:             EventKind(s.Kind),
		OfferedAuthTypes: s.OfferedAuthTypes,
		OfferedSubtypes:  s.OfferedSubtypes,
		CredentialField:  CredentialField(s.CredentialField),
		Reason:           s.Reason,
		Err:              s.Err,
		Width:            s.Width,
		Height:           s.Height,
		PixelFormat:      s.PixelFormat,
		Cursor:           s.Cursor,
		Absolute:         s.Absolute,
		LEDs:             s.LEDs,
	}
}

// Handler receives report-only events (everything except the four
// Choose/Needed/Decision request kinds, which are resolved through
// OnAuthChooseType/OnAuthChooseSubtype/OnCredentialNeeded/
// OnCertificateDecision instead since their replies aren't a plain Event).
type Handler func(Event)
