// Package bridge implements voice.Adapter over a websocket to the kiosk panel.
// The panel owns the speaker and microphone; the bridge sends it speak and
// listen commands and turns what it reports back into voice.Events.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"expo-kiosk-service/internal/models"
	"expo-kiosk-service/internal/observability/logging"
	"expo-kiosk-service/internal/observability/metrics"
	"expo-kiosk-service/internal/service/voice"
)

const (
	sendBuffer   = 64
	maxReadBytes = 1 << 20
)

// AudioStream receives panel microphone audio for server-side recognition.
type AudioStream interface {
	SendAudio(ctx context.Context, audio []byte) error
	Close() error
}

// AudioOpener starts a server-side recognition session reporting to events.
// A nil opener leaves recognition to the panel.
type AudioOpener func(ctx context.Context, connectionID string, events voice.Events) (AudioStream, error)

// Config holds bridge settings.
type Config struct {
	KioskID       string
	Options       voice.Options
	RestartDelay  time.Duration
	AllowInsecure bool
	WriteTimeout  time.Duration
	PingInterval  time.Duration
	Audio         AudioOpener
}

// Bridge serves one panel at a time. A new connection replaces the old one.
type Bridge struct {
	cfg      Config
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu           sync.Mutex
	events       voice.Events
	client       *client
	listening    bool
	finalTaken   bool // a final was forwarded in this listening session
	speaking     bool
	utteranceID  string
	restart      *time.Timer
	stream       AudioStream
	streamCancel context.CancelFunc
	lastState    []byte
}

// client is one panel connection.
type client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	logger  zerolog.Logger
	blocked bool // recognition unavailable on this panel
	alerted bool
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// New creates a bridge. Events must be set with SetEvents before panels connect.
func New(cfg Config) *Bridge {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = 100 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.Options.Language == "" {
		cfg.Options = voice.DefaultOptions()
	}
	return &Bridge{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithKiosk(cfg.KioskID, "voice-bridge"),
	}
}

// SetEvents sets the receiver of speech events.
func (b *Bridge) SetEvents(ev voice.Events) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = ev
}

// Connected reports whether a panel is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client != nil
}

// Listening reports whether recognition has been requested and not stopped.
func (b *Bridge) Listening() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listening
}

// --- voice.Adapter ---

// Speak sends an utterance to the panel. The panel cancels whatever it was
// saying; events for the superseded utterance are ignored.
func (b *Bridge) Speak(ctx context.Context, text string) error {
	b.mu.Lock()
	c := b.client
	if c == nil {
		b.mu.Unlock()
		return voice.ErrNoClient
	}
	id := uuid.NewString()
	b.utteranceID = id
	b.mu.Unlock()

	b.metrics.RecordUtterance()
	return b.sendTo(c, Message{
		Type:        TypeSpeak,
		Text:        text,
		UtteranceID: id,
		Language:    b.cfg.Options.Language,
		Voice:       b.cfg.Options.Voice,
		Rate:        b.cfg.Options.Rate,
		Pitch:       b.cfg.Options.Pitch,
	})
}

// StartListening asks the panel to start recognition. A no-op while
// already listening.
func (b *Bridge) StartListening(ctx context.Context) error {
	b.mu.Lock()
	c := b.client
	if c == nil {
		b.mu.Unlock()
		return voice.ErrNoClient
	}
	if c.blocked {
		b.mu.Unlock()
		return voice.ErrRecognitionUnavailable
	}
	if b.listening {
		b.mu.Unlock()
		return nil
	}
	b.cancelRestartLocked()
	b.listening = true
	b.finalTaken = false
	events := b.events
	b.mu.Unlock()

	mode := ModeBrowser
	if b.cfg.Audio != nil {
		mode = ModeStream
		if err := b.openStream(c, events); err != nil {
			b.mu.Lock()
			b.listening = false
			b.mu.Unlock()
			return err
		}
	}

	c.logger.Debug().Str("mode", mode).Msg("Start listening")
	return b.sendTo(c, Message{
		Type:       TypeStartListening,
		Language:   b.cfg.Options.Language,
		Continuous: true,
		Mode:       mode,
	})
}

// StopListening stops recognition. Idempotent.
func (b *Bridge) StopListening(ctx context.Context) error {
	b.mu.Lock()
	b.cancelRestartLocked()
	if !b.listening {
		b.mu.Unlock()
		return nil
	}
	b.listening = false
	c := b.client
	b.mu.Unlock()

	b.closeStream()

	if c == nil {
		return nil
	}
	c.logger.Debug().Msg("Stop listening")
	return b.sendTo(c, Message{Type: TypeStopListening})
}

// PushState forwards a state change to the panel and remembers it for
// panels that connect later.
func (b *Bridge) PushState(ev models.StateChanged) {
	data, err := json.Marshal(Message{Type: TypeState, State: &ev})
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to marshal state message")
		return
	}

	b.mu.Lock()
	b.lastState = data
	c := b.client
	b.mu.Unlock()

	if c != nil {
		b.enqueue(c, data)
	}
}

// ServeHTTP upgrades a panel connection and runs it until it closes.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	id := uuid.NewString()
	c := &client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logging.WithConnection(b.cfg.KioskID, id),
	}

	secure := b.cfg.AllowInsecure || isSecureRequest(r)
	c.logger.Info().
		Str("remoteAddr", r.RemoteAddr).
		Str("host", r.Host).
		Bool("secureContext", secure).
		Msg("Panel connected")

	b.attach(c)
	b.metrics.RecordPanelConnected(true)
	go b.writeLoop(c)

	if !secure {
		b.metrics.RecordInsecureContext()
		b.blockRecognition(c, voice.CodeInsecureContext)
	}

	b.readLoop(c)

	b.detach(c)
	b.metrics.RecordPanelConnected(false)
	c.logger.Info().Msg("Panel disconnected")
}

// attach makes c the current panel, closing any previous one.
func (b *Bridge) attach(c *client) {
	b.mu.Lock()
	old := b.client
	wasSpeaking := b.resetLocked()
	b.client = c
	last := b.lastState
	events := b.events
	b.mu.Unlock()

	b.closeStream()
	if old != nil {
		old.logger.Info().Msg("Panel replaced by a new connection")
		old.close()
	}
	if wasSpeaking && events != nil {
		events.OnSpeechError(voice.ErrNoClient)
	}
	if last != nil {
		b.enqueue(c, last)
	}
}

// detach clears c if it is still the current panel.
func (b *Bridge) detach(c *client) {
	c.close()

	b.mu.Lock()
	if b.client != c {
		b.mu.Unlock()
		return
	}
	wasSpeaking := b.resetLocked()
	b.client = nil
	events := b.events
	b.mu.Unlock()

	b.closeStream()
	if wasSpeaking && events != nil {
		events.OnSpeechError(voice.ErrNoClient)
	}
}

// resetLocked clears per-panel voice state and reports whether speech was
// in progress.
func (b *Bridge) resetLocked() bool {
	wasSpeaking := b.speaking
	b.cancelRestartLocked()
	b.listening = false
	b.speaking = false
	b.utteranceID = ""
	return wasSpeaking
}

func (b *Bridge) readLoop(c *client) {
	c.conn.SetReadLimit(maxReadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * b.cfg.PingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * b.cfg.PingInterval))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("Panel read failed")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * b.cfg.PingInterval))

		switch msgType {
		case websocket.BinaryMessage:
			b.handleAudio(c, data)
		case websocket.TextMessage:
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				c.logger.Warn().Err(err).Msg("Invalid panel message")
				continue
			}
			b.handleMessage(c, msg)
		}
	}
}

func (b *Bridge) handleMessage(c *client, msg Message) {
	b.mu.Lock()
	if b.client != c {
		b.mu.Unlock()
		return
	}
	events := b.events
	b.mu.Unlock()

	switch msg.Type {
	case TypeHello:
		b.handleHello(c, msg)

	case TypeSpeechStart:
		if !b.currentUtterance(msg.UtteranceID) {
			return
		}
		b.mu.Lock()
		b.speaking = true
		b.cancelRestartLocked()
		b.mu.Unlock()
		if events != nil {
			events.OnSpeechStart()
		}

	case TypeSpeechEnd:
		if !b.currentUtterance(msg.UtteranceID) {
			return
		}
		b.mu.Lock()
		b.speaking = false
		b.mu.Unlock()
		if events != nil {
			events.OnSpeechEnd()
		}

	case TypeSpeechError:
		if !b.currentUtterance(msg.UtteranceID) {
			return
		}
		b.mu.Lock()
		b.speaking = false
		b.mu.Unlock()
		b.metrics.RecordSpeechFailure()
		c.logger.Warn().Str("error", msg.Error).Msg("Speech synthesis failed on panel")
		if events != nil {
			events.OnSpeechError(fmt.Errorf("speech synthesis: %s", msg.Error))
		}

	case TypeTranscript:
		b.mu.Lock()
		accept := b.listening && !b.finalTaken
		if accept && msg.Final && strings.TrimSpace(msg.Text) != "" {
			b.finalTaken = true
		}
		b.mu.Unlock()
		if !accept {
			c.logger.Debug().Bool("final", msg.Final).Msg("Transcript outside listening session dropped")
			return
		}
		if events == nil {
			return
		}
		if msg.Final {
			events.OnTranscriptFinal(msg.Text)
		} else {
			events.OnTranscriptUpdate(msg.Text)
		}

	case TypeRecognitionEnd:
		b.scheduleRestart(c)

	case TypeRecognitionError:
		b.handleRecognitionError(c, msg.Error)

	default:
		c.logger.Debug().Str("type", msg.Type).Msg("Unknown panel message")
	}
}

func (b *Bridge) handleHello(c *client, msg Message) {
	c.logger.Info().
		Interface("secureContext", msg.SecureContext).
		Interface("recognitionSupported", msg.RecognitionSupported).
		Interface("microphoneAvailable", msg.MicrophoneAvailable).
		Msg("Panel hello")

	switch {
	case msg.SecureContext != nil && !*msg.SecureContext && !b.cfg.AllowInsecure:
		b.metrics.RecordInsecureContext()
		b.blockRecognition(c, voice.CodeInsecureContext)
	case msg.RecognitionSupported != nil && !*msg.RecognitionSupported && b.cfg.Audio == nil:
		b.blockRecognition(c, voice.CodeUnsupported)
	case msg.MicrophoneAvailable != nil && !*msg.MicrophoneAvailable:
		b.blockRecognition(c, voice.CodeAudioCapture)
	}
}

func (b *Bridge) handleRecognitionError(c *client, code string) {
	class := voice.Classify(code)
	b.metrics.RecordRecognitionError(code, class.String())

	b.mu.Lock()
	events := b.events
	b.mu.Unlock()

	if class == voice.ClassUnavailable {
		b.blockRecognition(c, code)
	} else {
		c.logger.Debug().Str("code", code).Msg("Transient recognition error")
	}
	if events != nil {
		events.OnRecognitionError(code)
	}
}

// blockRecognition disables recognition for this panel and alerts once.
func (b *Bridge) blockRecognition(c *client, code string) {
	b.mu.Lock()
	if b.client != c {
		b.mu.Unlock()
		return
	}
	c.blocked = true
	b.listening = false
	b.cancelRestartLocked()
	alert := !c.alerted
	c.alerted = true
	b.mu.Unlock()

	b.closeStream()
	c.logger.Warn().Str("code", code).Msg("Speech recognition unavailable")

	if alert {
		_ = b.sendTo(c, Message{Type: TypeAlert, Text: voice.AlertMessage(code), Error: code})
	}
}

// scheduleRestart restarts recognition after an unrequested stop.
func (b *Bridge) scheduleRestart(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != c || !b.listening || c.blocked || b.speaking {
		return
	}
	b.cancelRestartLocked()

	var timer *time.Timer
	timer = time.AfterFunc(b.cfg.RestartDelay, func() {
		b.mu.Lock()
		if b.restart != timer || b.client != c || !b.listening || c.blocked || b.speaking {
			b.mu.Unlock()
			return
		}
		b.restart = nil
		b.mu.Unlock()

		b.metrics.RecordRecognitionRestart()
		c.logger.Debug().Msg("Restarting recognition")
		_ = b.sendTo(c, Message{
			Type:       TypeStartListening,
			Language:   b.cfg.Options.Language,
			Continuous: true,
			Mode:       b.mode(),
		})
	})
	b.restart = timer
}

func (b *Bridge) cancelRestartLocked() {
	if b.restart != nil {
		b.restart.Stop()
		b.restart = nil
	}
}

func (b *Bridge) currentUtterance(id string) bool {
	if id == "" {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return id == b.utteranceID
}

func (b *Bridge) mode() string {
	if b.cfg.Audio != nil {
		return ModeStream
	}
	return ModeBrowser
}

func (b *Bridge) openStream(c *client, events voice.Events) error {
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := b.cfg.Audio(ctx, c.id, events)
	if err != nil {
		cancel()
		c.logger.Error().Err(err).Msg("Failed to open recognition stream")
		return fmt.Errorf("open recognition stream: %w", err)
	}

	b.mu.Lock()
	b.stream = stream
	b.streamCancel = cancel
	b.mu.Unlock()
	return nil
}

func (b *Bridge) closeStream() {
	b.mu.Lock()
	stream, cancel := b.stream, b.streamCancel
	b.stream, b.streamCancel = nil, nil
	b.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			b.logger.Warn().Err(err).Msg("Error closing recognition stream")
		}
	}
	if cancel != nil {
		cancel()
	}
}

func (b *Bridge) handleAudio(c *client, data []byte) {
	b.mu.Lock()
	stream := b.stream
	current := b.client == c
	b.mu.Unlock()

	if !current || stream == nil {
		return
	}
	b.metrics.RecordAudioReceived(len(data))
	if err := stream.SendAudio(context.Background(), data); err != nil {
		c.logger.Warn().Err(err).Msg("Recognition stream rejected audio")
		b.closeStream()
	}
}

func (b *Bridge) sendTo(c *client, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}
	if !b.enqueue(c, data) {
		return voice.ErrNoClient
	}
	return nil
}

func (b *Bridge) enqueue(c *client, data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn().Msg("Panel send buffer full, dropping connection")
		c.close()
		return false
	}
}

func (b *Bridge) writeLoop(c *client) {
	ticker := time.NewTicker(b.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			deadline := time.Now().Add(b.cfg.WriteTimeout)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn().Err(err).Msg("Panel write failed")
				c.close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(b.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.close()
				return
			}
		}
	}
}

// isSecureRequest reports whether the page talking to us is a browser
// secure context: served over TLS or from a loopback host.
func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}

	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

var _ voice.Adapter = (*Bridge)(nil)
