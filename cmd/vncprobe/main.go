package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/vncclient/internal/clientmsg"
	"github.com/breeze-rmm/vncclient/internal/config"
	"github.com/breeze-rmm/vncclient/internal/framebuffer"
	"github.com/breeze-rmm/vncclient/internal/logging"
	"github.com/breeze-rmm/vncclient/internal/rfb"
	"github.com/breeze-rmm/vncclient/pkg/vnc"
)

var (
	version = "0.1.0"
	cfgFile string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "vncprobe",
	Short: "vncprobe - a minimal RFB/VNC client for exercising a server",
	Long:  `vncprobe dials a VNC server, completes the handshake and negotiated auth, and logs every framebuffer/input event it sees; it never renders a screen.`,
}

var connectCmd = &cobra.Command{
	Use:   "connect [host:port]",
	Short: "Connect to a VNC server and log session events until disconnected",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if len(args) == 1 {
			host, portStr, splitErr := net.SplitHostPort(args[0])
			if splitErr == nil {
				cfg.Host = host
				if p, convErr := strconv.Atoi(portStr); convErr == nil {
					cfg.Port = p
				}
			} else {
				cfg.Host = args[0]
			}
		}
		initLogging(cfg)
		if err := runConnect(cfg); err != nil {
			log.Error("session ended with error", "error", err)
			os.Exit(1)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vncprobe v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: vncprobe.yaml in the user config directory, then the working directory)")
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging sets up structured logging from config, mirroring the
// teacher's stdout+rotating-file tee with a fallback to stdout-only if
// the log file can't be opened.
func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout
	logFileFallback := false

	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
			logFileFallback = true
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")

	if logFileFallback {
		log.Warn("log file fallback active, logging to stdout only", "requestedFile", cfg.LogFile)
	}
}

func runConnect(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("signal received, closing session")
		cancel()
	}()

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	client, err := vnc.DialContext(ctx, addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	client.SetShared(cfg.Shared)
	client.SetAuthType(authTypesFromNames(cfg.PreferredAuth)...)
	client.SetCredential(vnc.CredentialUsername, cfg.Username)
	client.SetCredential(vnc.CredentialPassword, cfg.Password)
	client.SetEncodings(encodingsFromNames(cfg.EncodingPreference))
	client.SetTLSServerHost(cfg.TLSServerName)
	if cfg.TLSCAFile != "" || cfg.TLSCertFile != "" {
		client.SetTLSSysconfDir(cfg.TLSCAFile)
	}
	if cfg.PreferredBitsPerPixel != 0 {
		client.SetPixelFormat(preferredFormat(cfg.PreferredBitsPerPixel))
	}

	fb := framebuffer.NewMemory()
	client.SetFramebuffer(fb)

	registerLoggingHandlers(client)

	if err := client.Start(ctx); err != nil {
		return err
	}

	if cfg.AudioEnabled {
		client.SetAudioFormat(clientmsg.AudioFormat{SampleFormat: 0, Channels: 2, FrequencyHz: uint32(cfg.AudioSampleRate)})
		client.AudioEnable()
	}

	return client.Wait()
}

// registerLoggingHandlers wires every report-only event to a structured
// log line; vncprobe never renders a screen, so this is the entire
// "observe the session" surface.
func registerLoggingHandlers(client *vnc.Client) {
	client.On(vnc.EventConnected, func(vnc.Event) { log.Info("connected") })
	client.On(vnc.EventInitialized, func(vnc.Event) { log.Info("initialized") })
	client.On(vnc.EventDisconnected, func(ev vnc.Event) { log.Info("disconnected", "error", ev.Err) })
	client.On(vnc.EventError, func(ev vnc.Event) { log.Error("session error", "error", ev.Err) })
	client.On(vnc.EventAuthFailure, func(ev vnc.Event) { log.Error("auth failure", "reason", ev.Reason) })
	client.On(vnc.EventAuthUnsupported, func(vnc.Event) { log.Error("no usable auth type offered") })
	client.On(vnc.EventFramebufferUpdate, func(vnc.Event) { log.Debug("framebuffer update applied") })
	client.On(vnc.EventDesktopResize, func(ev vnc.Event) { log.Info("desktop resized", "width", ev.Width, "height", ev.Height) })
	client.On(vnc.EventPixelFormatChanged, func(ev vnc.Event) { log.Info("pixel format changed", "bitsPerPixel", ev.PixelFormat.BitsPerPixel) })
	client.On(vnc.EventCursorChanged, func(ev vnc.Event) {
		if ev.Cursor != nil {
			log.Debug("cursor changed", "width", ev.Cursor.Width, "height", ev.Cursor.Height)
		}
	})
	client.On(vnc.EventPointerModeChanged, func(ev vnc.Event) { log.Debug("pointer mode changed", "absolute", ev.Absolute) })
	client.On(vnc.EventLedState, func(ev vnc.Event) { log.Debug("led state changed", "leds", ev.LEDs) })
	client.On(vnc.EventBell, func(vnc.Event) { log.Debug("bell") })
	client.On(vnc.EventServerCutText, func(ev vnc.Event) { log.Info("server cut text", "length", len(ev.Reason)) })

	client.OnCredentialNeeded(func(field vnc.CredentialField) string {
		log.Warn("credential requested but none configured", "field", field)
		return ""
	})
	client.OnCertificateDecision(func(reason string) bool {
		log.Error("rejecting certificate", "reason", reason)
		return false
	})
}

var authNameToType = map[string]int{
	"none":     rfb.AuthNone,
	"vnc":      rfb.AuthVNC,
	"mslogon":  rfb.AuthMSLogon,
	"ard":      rfb.AuthARD,
	"tls":      rfb.AuthTLS,
	"vencrypt": rfb.AuthVeNCrypt,
	"sasl":     rfb.AuthSASL,
}

func authTypesFromNames(names []string) []int {
	types := make([]int, 0, len(names))
	for _, name := range names {
		if t, ok := authNameToType[strings.ToLower(name)]; ok {
			types = append(types, t)
		}
	}
	return types
}

var encodingNameToCode = map[string]int32{
	"tight":    rfb.EncodingTight,
	"zrle":     rfb.EncodingZRLE,
	"hextile":  rfb.EncodingHextile,
	"rre":      rfb.EncodingRRE,
	"copyrect": rfb.EncodingCopyRect,
	"raw":      rfb.EncodingRaw,
}

// pseudoEncodings is always advertised regardless of cfg.EncodingPreference
// (which only names pixel-data encodings), since dropping them would
// silently disable desktop resize, cursor shapes, and audio capability
// detection.
var pseudoEncodings = []int32{
	rfb.EncodingDesktopResize, rfb.EncodingRichCursor, rfb.EncodingXCursor,
	rfb.EncodingPointerChange, rfb.EncodingExtKeyEvent, rfb.EncodingAudio,
	rfb.EncodingLedState, rfb.EncodingWMVi,
}

func encodingsFromNames(names []string) []int32 {
	list := make([]int32, 0, len(names)+len(pseudoEncodings))
	for _, name := range names {
		if code, ok := encodingNameToCode[strings.ToLower(name)]; ok {
			list = append(list, code)
		}
	}
	return append(list, pseudoEncodings...)
}

func preferredFormat(bpp int) rfb.PixelFormat {
	if bpp == 32 {
		return rfb.DefaultPixelFormat
	}
	f := rfb.DefaultPixelFormat
	f.BitsPerPixel = bpp
	f.Depth = bpp
	switch bpp {
	case 8:
		f.RedMax, f.GreenMax, f.BlueMax = 7, 7, 3
		f.RedShift, f.GreenShift, f.BlueShift = 5, 2, 0
	case 16:
		f.RedMax, f.GreenMax, f.BlueMax = 31, 63, 31
		f.RedShift, f.GreenShift, f.BlueShift = 11, 5, 0
	}
	return f
}
