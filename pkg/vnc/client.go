// Package vnc is the public entry point for the RFB client: dial a
// server, configure auth/encodings/framebuffer, register handlers for the
// events the session produces, and drive it. Everything below this
// package (internal/session, internal/handshake, internal/clientmsg) is
// unexported on purpose — a consumer only ever sees Client and Event.
package vnc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/breeze-rmm/vncclient/internal/audio"
	"github.com/breeze-rmm/vncclient/internal/auth/tlsauth"
	"github.com/breeze-rmm/vncclient/internal/clientmsg"
	"github.com/breeze-rmm/vncclient/internal/handshake"
	"github.com/breeze-rmm/vncclient/internal/logging"
	"github.com/breeze-rmm/vncclient/internal/rfb"
	"github.com/breeze-rmm/vncclient/internal/session"
	"github.com/breeze-rmm/vncclient/internal/signalbus"
	"github.com/breeze-rmm/vncclient/internal/transport"
)

var log = logging.L("vnc")

// Client is one RFB connection: dial, configure, Start, then drive it
// with the outbound methods and observe it through On*/registered
// Handlers. Not safe for concurrent configuration calls (SetXxx) after
// Start; the outbound messaging methods (KeyEvent, PointerEvent, ...) and
// Close are safe to call from any goroutine at any time.
type Client struct {
	conn net.Conn

	shared          bool
	authTypes       []int
	subauths        []int
	tlsPolicy       tlsauth.Policy
	saslHost        string
	credentials     map[CredentialField]string
	clientName      string
	encodings       []int32
	preferredFormat rfb.PixelFormat
	fb              rfb.Framebuffer
	audioSink       audio.Sink

	handlersMu sync.Mutex
	handlers   map[EventKind][]Handler
	chooseType func(offered []int) int
	chooseSub  func(offered []int) int
	credFn     func(field CredentialField) string
	certFn     func(reason string) bool

	bus  *signalbus.Bus
	sess *session.Session

	runOnce sync.Once
	runErr  chan error
}

func newClient(conn net.Conn) *Client {
	return &Client{
		conn:        conn,
		encodings:   defaultEncodings(),
		credentials: map[CredentialField]string{},
		handlers:    map[EventKind][]Handler{},
		bus:         signalbus.New(32),
		runErr:      make(chan error, 1),
	}
}

// defaultEncodings is the encoding list a fresh Client advertises before
// any SetEncodings call: every decoder this module implements, ordered
// richest-first so a server honoring preference order picks well.
func defaultEncodings() []int32 {
	return []int32{
		rfb.EncodingTight, rfb.EncodingZRLE, rfb.EncodingHextile,
		rfb.EncodingRRE, rfb.EncodingCopyRect, rfb.EncodingRaw,
		rfb.EncodingDesktopResize, rfb.EncodingRichCursor, rfb.EncodingXCursor,
		rfb.EncodingPointerChange, rfb.EncodingExtKeyEvent, rfb.EncodingAudio,
		rfb.EncodingLedState, rfb.EncodingWMVi,
	}
}

// Dial opens a plain TCP connection to addr (host:port) and returns a
// Client ready to be configured and Started.
func Dial(addr string) (*Client, error) {
	conn, err := transport.DialTCP(addr)
	if err != nil {
		return nil, err
	}
	return newClient(conn), nil
}

// DialContext is like Dial but honors ctx's deadline/cancellation during
// the TCP dial.
func DialContext(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("vnc: dial %s: %w", addr, err)
	}
	return newClient(conn), nil
}

// DialWebSocket opens a WebSocket-tunneled connection (ws:// or wss://),
// the noVNC/websockify deployment shape, instead of a raw TCP socket.
func DialWebSocket(ctx context.Context, rawURL string, header http.Header) (*Client, error) {
	conn, err := transport.DialWebSocket(ctx, rawURL, header)
	if err != nil {
		return nil, err
	}
	return newClient(conn), nil
}

// NewWithConn wraps an already-established connection (e.g. one accepted
// from a reverse-VNC listener, or tunneled through something this package
// doesn't dial itself).
func NewWithConn(conn net.Conn) *Client {
	return newClient(conn)
}

// SetShared sets the "shared" flag sent during Initialization: true lets
// the server keep other viewers connected, false asks it to drop them.
func (c *Client) SetShared(shared bool) { c.shared = shared }

// SetAuthType sets the auth types this client will accept, in preference
// order. If the server offers exactly one type, or a type in this list,
// it is chosen automatically; otherwise OnAuthChooseType (or, absent a
// handler, the first offered type) decides.
func (c *Client) SetAuthType(types ...int) { c.authTypes = types }

// SetAuthSubtype sets the VeNCrypt subauth preference order: the first
// listed subauth the server also offers is chosen, and the handshake fails
// if it offers none of them; an empty list uses a built-in order. The
// legacy TLS auth type does not use this list and picks None, then VNC,
// then SASL.
func (c *Client) SetAuthSubtype(subtypes ...int) { c.subauths = subtypes }

// SetCredential pre-supplies a piece of identity so the handshake never
// has to ask for it via OnCredentialNeeded. kind is CredentialUsername,
// CredentialPassword, or CredentialIdentity (SASL authzid); the x509
// client-certificate name a VeNCrypt subauth discovers by is set
// separately via SetClientName.
func (c *Client) SetCredential(kind CredentialField, value string) {
	c.credentials[kind] = value
}

// SetClientName sets the name used to discover an x509 client certificate
// for VeNCrypt's X509* subauths (looked up under the platform's PKI
// directory the way internal/transport.DiscoverX509 does for mTLS).
func (c *Client) SetClientName(name string) { c.clientName = name }

// SetTLSServerHost sets the hostname peer certificates are validated
// against. If it is never set, no hostname is checked against the peer
// certificate.
func (c *Client) SetTLSServerHost(host string) { c.tlsPolicy.ServerHost = host }

// SetTLSSysconfDir overrides where an X509* VeNCrypt subauth looks for CA
// bundles, CRLs, and the client cert/key pair (default: the platform's
// pki directory, per internal/transport.DiscoverX509).
func (c *Client) SetTLSSysconfDir(dir string) { c.tlsPolicy.SysconfDir = dir }

// SetSASLHost sets the hostname SASL mechanisms that bind to a service
// name (e.g. GSSAPI) authenticate against.
func (c *Client) SetSASLHost(host string) { c.saslHost = host }

// SetFramebuffer installs the pixel store every rectangle decode writes
// into. Required before Start.
func (c *Client) SetFramebuffer(fb rfb.Framebuffer) { c.fb = fb }

// SetAudioSink installs the sink that receives flushed QEMU audio
// samples. Optional; audio data is discarded if never set.
func (c *Client) SetAudioSink(sink audio.Sink) { c.audioSink = sink }

// SetEncodings overrides the default encoding list advertised to the
// server. ZRLE is still dropped automatically if the negotiated pixel
// format can't represent it exactly (see internal/clientmsg.SetEncodings).
func (c *Client) SetEncodings(list []int32) { c.encodings = list }

// SetPixelFormat requests a specific PixelFormat instead of the server's
// native one; pass the zero value to keep the server's format.
func (c *Client) SetPixelFormat(f rfb.PixelFormat) { c.preferredFormat = f }

// OnAuthChooseType registers the callback that picks one auth type when
// the configured preference list doesn't resolve it automatically.
func (c *Client) OnAuthChooseType(fn func(offered []int) int) { c.chooseType = fn }

// OnAuthChooseSubtype registers the callback that answers a subauth-choice
// request on the signal bus. The handshake never sends such a request
// (subauths are chosen as SetAuthSubtype describes), so fn is not called
// during a handshake.
func (c *Client) OnAuthChooseSubtype(fn func(offered []int) int) { c.chooseSub = fn }

// OnCredentialNeeded registers a fallback consulted only when
// SetCredential didn't already supply the requested field.
func (c *Client) OnCredentialNeeded(fn func(field CredentialField) string) { c.credFn = fn }

// OnCertificateDecision registers the callback that answers a
// certificate-decision request on the signal bus; absent a handler, such a
// request is rejected. The handshake never sends one: a certificate
// validation failure always ends the handshake with an error.
func (c *Client) OnCertificateDecision(fn func(reason string) bool) { c.certFn = fn }

// On registers h to be called for every Event of kind. Multiple handlers
// for the same kind are all called, in registration order. On and the
// dispatch goroutine Start launches both hold handlersMu, so On may be
// called at any time; a handler sees only events dispatched after it was
// registered.
func (c *Client) On(kind EventKind, h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[kind] = append(c.handlers[kind], h)
}

// Start performs the handshake and begins the message loop in a
// background goroutine, returning immediately; use Wait to block until
// the session ends, or observe EventDisconnected/EventError via On.
// SetFramebuffer must have been called first.
func (c *Client) Start(ctx context.Context) error {
	if c.fb == nil {
		return fmt.Errorf("vnc: Start called without SetFramebuffer")
	}
	alreadyStarted := true
	c.runOnce.Do(func() { alreadyStarted = false })
	if alreadyStarted {
		return fmt.Errorf("vnc: Start called more than once")
	}

	c.sess = session.New(c.conn, c.fb, c.bus, c.audioSink)

	cfg := session.Config{
		HandshakePolicy: handshake.Policy{
			PreferredAuthTypes: c.authTypes,
			PreferredSubauths:  c.subauths,
			TLSPolicy:          c.tlsPolicyFor(),
			SASLHost:           c.saslHost,
			SASLUsername:       c.credentials[CredentialUsername],
			Credential:         c.resolveCredential,
		},
		Shared:          c.shared,
		Encodings:       c.encodings,
		PreferredFormat: c.preferredFormat,
		AudioSink:       c.audioSink,
	}

	go c.dispatch()
	go func() {
		c.runErr <- c.sess.Run(ctx, cfg)
	}()
	return nil
}

func (c *Client) tlsPolicyFor() tlsauth.Policy {
	p := c.tlsPolicy
	p.ClientName = c.clientName
	return p
}

// resolveCredential bridges the handshake's signalbus.CredentialField to
// the pre-supplied SetCredential map, falling back to OnCredentialNeeded
// only if that's empty (the bus Ask path handles that fallback itself;
// this is the Policy.Credential short-circuit consulted first).
func (c *Client) resolveCredential(field signalbus.CredentialField) string {
	return c.credentials[CredentialField(field)]
}

// Wait blocks until the session ends and returns its sticky error (never
// nil; io.EOF on a clean server-initiated close).
func (c *Client) Wait() error {
	return <-c.runErr
}

// dispatch drains the signal bus for the lifetime of the session,
// resolving the four request kinds and invoking registered Handlers for
// everything else.
func (c *Client) dispatch() {
	for s := range c.bus.Signals() {
		switch s.Kind {
		case signalbus.KindAuthChooseType:
			signalbus.Respond(s, signalbus.Reply{AuthType: c.resolveChoice(c.chooseType, s.OfferedAuthTypes)})
		case signalbus.KindAuthChooseSubtype:
			signalbus.Respond(s, signalbus.Reply{Subtype: c.resolveChoice(c.chooseSub, s.OfferedSubtypes)})
		case signalbus.KindCredentialNeeded:
			var v string
			if c.credFn != nil {
				v = c.credFn(CredentialField(s.CredentialField))
			}
			signalbus.Respond(s, signalbus.Reply{Credential: v})
		case signalbus.KindCertificateDecision:
			proceed := false
			if c.certFn != nil {
				proceed = c.certFn(s.Reason)
			}
			signalbus.Respond(s, signalbus.Reply{Proceed: proceed})
		default:
			c.invoke(EventKind(s.Kind), newEvent(s))
		}
	}
}

// resolveChoice applies fn if registered, else picks the first offered
// option (the safest available choice once automatic preference-list
// matching has already failed).
func (c *Client) resolveChoice(fn func([]int) int, offered []int) int {
	if fn != nil {
		return fn(offered)
	}
	if len(offered) == 0 {
		return 0
	}
	return offered[0]
}

func (c *Client) invoke(kind EventKind, ev Event) {
	c.handlersMu.Lock()
	hs := append([]Handler(nil), c.handlers[kind]...)
	c.handlersMu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

// Close ends the session from the client side; Wait still returns the
// resulting error. Safe to call more than once or before Start.
func (c *Client) Close() error {
	if c.sess != nil {
		return c.sess.Close()
	}
	return c.conn.Close()
}

// SetPixelFormatNow sends a SetPixelFormat message mid-session, outside
// of the one Start sends automatically during Initialization; useful if
// the embedder wants to change format after seeing the framebuffer's
// actual size (e.g. switching to an 8bpp indexed format for a
// low-bandwidth link).
func (c *Client) SetPixelFormatNow(f rfb.PixelFormat) {
	c.sess.Enqueue(clientmsg.SetPixelFormat(f))
}

// FramebufferUpdateRequest enqueues an explicit update request outside
// the automatic incremental re-request the message loop already issues
// after every FramebufferUpdate.
func (c *Client) FramebufferUpdateRequest(incremental bool, x, y, w, h int) {
	c.sess.RequestUpdate(incremental, x, y, w, h)
}

// KeyEvent sends a key press/release. scancode is only honored (via the
// QEMU ExtendedKeyEvent message) when the server has advertised the
// ExtKeyEvent pseudo-encoding; otherwise the legacy 8-byte KeyEvent
// message is sent and scancode is ignored.
func (c *Client) KeyEvent(down bool, keysym uint32, scancode uint32) {
	if c.sess.SupportsExtKeyEvent() {
		c.sess.Enqueue(clientmsg.QEMUExtendedKeyEvent(down, keysym, scancode))
		return
	}
	c.sess.Enqueue(clientmsg.KeyEvent(down, keysym))
}

// PointerEvent sends a pointer motion/button-state update. mask is the
// standard RFB button bitmask (bit 0 = button 1, ...).
func (c *Client) PointerEvent(mask byte, x, y int) {
	c.sess.Enqueue(clientmsg.PointerEvent(mask, x, y))
}

// ClientCutText forwards local clipboard text to the server.
func (c *Client) ClientCutText(text []byte) {
	c.sess.Enqueue(clientmsg.ClientCutText(text))
}

// SetAudioFormat sends the QEMU audio extension's SetFormat submessage;
// call before AudioEnable.
func (c *Client) SetAudioFormat(f clientmsg.AudioFormat) {
	c.sess.Enqueue(clientmsg.QEMUAudioSetFormat(f))
}

// AudioEnable asks the server to start streaming QEMU audio data;
// requires the server to have advertised the Audio pseudo-encoding
// (observe EventError if it hasn't, or check a prior EventFramebufferUpdate
// round-trip completed without one).
func (c *Client) AudioEnable() {
	c.sess.Enqueue(clientmsg.QEMUAudioEnable())
}

// AudioDisable asks the server to stop streaming QEMU audio data.
func (c *Client) AudioDisable() {
	c.sess.Enqueue(clientmsg.QEMUAudioDisable())
}
