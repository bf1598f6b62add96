// Package kiosk runs the interaction state machine. A single goroutine owns
// all interaction state; camera observations, voice events, timer fires and
// operator actions are posted to it as events.
package kiosk

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"expo-kiosk-service/internal/models"
	"expo-kiosk-service/internal/observability/logging"
	"expo-kiosk-service/internal/observability/metrics"
	"expo-kiosk-service/internal/service/answer"
	"expo-kiosk-service/internal/service/presence"
	"expo-kiosk-service/internal/service/transcript"
	"expo-kiosk-service/internal/service/vision"
	"expo-kiosk-service/internal/service/voice"
)

// Config holds the interaction timings and the greeting.
type Config struct {
	KioskID        string
	WelcomeMessage string
	ListenDelay    time.Duration // WELCOMING -> LISTENING
	HardReset      time.Duration // flags forcibly cleared after welcome
	AbsenceReset   time.Duration // flags cleared after this long with nobody in view
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		KioskID:        "expo-kiosk-1",
		WelcomeMessage: "Hello! Welcome to our Tech Expo. I am your AI assistant. How can I help you today?",
		ListenDelay:    5 * time.Second,
		HardReset:      15 * time.Second,
		AbsenceReset:   3 * time.Second,
	}
}

// Notifier receives interaction events. events.Bus satisfies it.
type Notifier interface {
	PublishState(ev models.StateChanged)
	PublishAnswer(ev models.AnswerDispatched)
}

// ReadinessChecker reports whether the detector can serve frames.
type ReadinessChecker interface {
	Ready() bool
}

type timerKind int

const (
	timerListen timerKind = iota
	timerHardReset
	timerAbsence
	numTimers
)

func (k timerKind) String() string {
	switch k {
	case timerListen:
		return "listen"
	case timerHardReset:
		return "hard_reset"
	case timerAbsence:
		return "absence"
	default:
		return "unknown"
	}
}

// timerSlot owns one scheduled callback. gen is bumped on every arm and
// cancel; a fire carrying an older gen is stale.
type timerSlot struct {
	handle Timer
	gen    uint64
}

type voiceKind int

const (
	speechStarted voiceKind = iota
	speechEnded
	speechFailed
	transcriptUpdated
	transcriptFinal
	recognitionFailed
)

type voiceEvent struct {
	kind voiceKind
	text string
	code string
	err  error
}

type timerEvent struct {
	kind timerKind
	gen  uint64
}

type restartEvent struct{}

// Orchestrator drives the IDLE / WELCOMING / LISTENING / SPEAKING cycle.
type Orchestrator struct {
	cfg       Config
	clock     Clock
	voice     voice.Adapter
	detector  ReadinessChecker
	estimator *presence.Estimator
	resolver  *answer.Resolver
	notifier  Notifier
	ids       *transcript.Generator
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	observations chan vision.Observation
	events       chan any
	done         chan struct{}
	doneOnce     sync.Once

	// Loop-owned.
	st         OrchestratorState
	timers     [numTimers]timerSlot
	transcript *transcript.Transcript

	statusMu sync.RWMutex
	status   Status
}

// New creates an orchestrator. Call SetVoice before Run if the voice adapter
// needs the orchestrator as its event sink.
func New(
	cfg Config,
	clock Clock,
	adapter voice.Adapter,
	detector ReadinessChecker,
	estimator *presence.Estimator,
	resolver *answer.Resolver,
	notifier Notifier,
) *Orchestrator {
	def := DefaultConfig()
	if cfg.KioskID == "" {
		cfg.KioskID = def.KioskID
	}
	if cfg.WelcomeMessage == "" {
		cfg.WelcomeMessage = def.WelcomeMessage
	}
	if cfg.ListenDelay <= 0 {
		cfg.ListenDelay = def.ListenDelay
	}
	if cfg.HardReset <= 0 {
		cfg.HardReset = def.HardReset
	}
	if cfg.AbsenceReset <= 0 {
		cfg.AbsenceReset = def.AbsenceReset
	}
	if clock == nil {
		clock = RealClock()
	}

	ids := transcript.NewGenerator()
	o := &Orchestrator{
		cfg:          cfg,
		clock:        clock,
		voice:        adapter,
		detector:     detector,
		estimator:    estimator,
		resolver:     resolver,
		notifier:     notifier,
		ids:          ids,
		logger:       logging.WithKiosk(cfg.KioskID, "orchestrator"),
		metrics:      metrics.DefaultMetrics,
		observations: make(chan vision.Observation, 1),
		events:       make(chan any, 64),
		done:         make(chan struct{}),
		transcript:   transcript.New(ids.Next(cfg.KioskID)),
	}
	o.st.State = StateIdle
	o.snapshotStatus()
	return o
}

// SetVoice replaces the voice adapter. Must be called before Run.
func (o *Orchestrator) SetVoice(adapter voice.Adapter) {
	o.voice = adapter
}

// Run processes events until ctx is cancelled. Pending timers are cancelled
// on return.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.doneOnce.Do(func() { close(o.done) })
	defer o.cancelAll()

	o.logger.Info().
		Dur("listenDelay", o.cfg.ListenDelay).
		Dur("hardReset", o.cfg.HardReset).
		Dur("absenceReset", o.cfg.AbsenceReset).
		Msg("Interaction loop started")

	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("Interaction loop stopped")
			return nil
		case obs := <-o.observations:
			o.handleObservation(ctx, obs)
		case ev := <-o.events:
			o.handle(ctx, ev)
		}
	}
}

// Status returns a copy of the current interaction state.
func (o *Orchestrator) Status() Status {
	o.statusMu.RLock()
	defer o.statusMu.RUnlock()
	return o.status
}

// PostObservation hands a frame result to the loop. Only the latest
// observation is kept; an unprocessed older one is discarded.
func (o *Orchestrator) PostObservation(obs vision.Observation) {
	for {
		select {
		case o.observations <- obs:
			return
		default:
		}
		select {
		case <-o.observations:
		default:
		}
	}
}

// RestartVoice restarts speech recognition, for use by an operator.
func (o *Orchestrator) RestartVoice() {
	o.post(restartEvent{})
}

// --- voice.Events implementation ---

func (o *Orchestrator) OnSpeechStart() {
	o.post(voiceEvent{kind: speechStarted})
}

func (o *Orchestrator) OnSpeechEnd() {
	o.post(voiceEvent{kind: speechEnded})
}

func (o *Orchestrator) OnSpeechError(err error) {
	o.post(voiceEvent{kind: speechFailed, err: err})
}

func (o *Orchestrator) OnTranscriptUpdate(text string) {
	o.post(voiceEvent{kind: transcriptUpdated, text: text})
}

func (o *Orchestrator) OnTranscriptFinal(text string) {
	o.post(voiceEvent{kind: transcriptFinal, text: text})
}

func (o *Orchestrator) OnRecognitionError(code string) {
	o.post(voiceEvent{kind: recognitionFailed, code: code})
}

// post queues ev for the loop. Events posted after Run returned are dropped.
func (o *Orchestrator) post(ev any) {
	select {
	case o.events <- ev:
	case <-o.done:
	}
}

func (o *Orchestrator) handle(ctx context.Context, ev any) {
	switch e := ev.(type) {
	case voiceEvent:
		o.handleVoice(ctx, e)
	case timerEvent:
		o.handleTimer(ctx, e)
	case restartEvent:
		o.handleRestart(ctx)
	default:
		o.logger.Warn().Interface("event", ev).Msg("Unknown event")
	}
}

func (o *Orchestrator) handleObservation(ctx context.Context, obs vision.Observation) {
	ready := o.detector == nil || o.detector.Ready()
	readyChanged := ready != o.st.DetectorReady
	o.st.DetectorReady = ready
	if !ready {
		if readyChanged {
			o.publishState(o.st.State)
		}
		return
	}

	prev := o.st.Presence
	snap := o.estimator.Observe(obs.Detections, obs.Width, obs.Height, obs.CapturedAt)
	o.st.Presence = snap
	o.metrics.RecordPresence(snap.PersonCount, snap.AnyClose)

	if snap.PersonCount == 0 {
		// Any non-idle state also needs the absence reset: flags may already
		// be clear (hard reset) while LISTENING is still active.
		engaged := o.st.Cooldown || o.st.WelcomeTriggered || o.st.State != StateIdle
		if engaged && !o.armed(timerAbsence) {
			o.arm(timerAbsence, o.cfg.AbsenceReset)
		}
	} else if o.armed(timerAbsence) {
		o.cancel(timerAbsence)
		o.logger.Debug().Msg("Visitor back, absence reset cancelled")
	}

	if snap.AnyClose && !o.st.Cooldown && !o.st.WelcomeTriggered && o.st.State == StateIdle {
		o.welcome(ctx)
		return
	}

	if readyChanged || prev.PersonCount != snap.PersonCount || prev.AnyClose != snap.AnyClose {
		o.publishState(o.st.State)
	}
}

func (o *Orchestrator) welcome(ctx context.Context) {
	prev := o.st.State
	o.st.Cooldown = true
	o.st.WelcomeTriggered = true
	o.st.WelcomedAt = o.clock.Now()
	o.st.Response = o.cfg.WelcomeMessage
	o.st.State = StateWelcoming

	o.arm(timerListen, o.cfg.ListenDelay)
	o.arm(timerHardReset, o.cfg.HardReset)

	o.metrics.RecordWelcome()
	o.logger.Info().
		Int("personCount", o.st.Presence.PersonCount).
		Msg("Visitor close, welcoming")
	o.publishState(prev)

	o.speak(ctx, o.cfg.WelcomeMessage)
}

func (o *Orchestrator) handleVoice(ctx context.Context, e voiceEvent) {
	switch e.kind {
	case speechStarted:
		o.transition(StateSpeaking)

	case speechEnded:
		o.speechDone(ctx, false)

	case speechFailed:
		o.logger.Warn().Err(e.err).Str("state", o.st.State.String()).Msg("Speech synthesis failed")
		o.speechDone(ctx, true)

	case transcriptUpdated:
		if err := o.transcript.Update(e.text); err != nil {
			o.logger.Debug().Err(err).Msg("Transcript update ignored")
			return
		}
		o.st.Transcript = e.text
		o.publishState(o.st.State)

	case transcriptFinal:
		o.answer(ctx, e.text)

	case recognitionFailed:
		ev := o.logger.Debug()
		if voice.Classify(e.code) == voice.ClassUnavailable {
			ev = o.logger.Warn()
		}
		ev.Str("code", e.code).Str("state", o.st.State.String()).Msg("Recognition error")
	}
}

// speechDone returns to LISTENING after an utterance. A failed utterance
// spoken while LISTENING (an answer) also resumes recognition.
func (o *Orchestrator) speechDone(ctx context.Context, failed bool) {
	if o.st.State != StateSpeaking && !(failed && o.st.State == StateListening) {
		return
	}
	o.transition(StateListening)
	o.startListening(ctx)
}

func (o *Orchestrator) answer(ctx context.Context, text string) {
	final, err := o.transcript.Finalize(text)
	if err != nil {
		if errors.Is(err, transcript.ErrEmptyFinal) {
			o.logger.Debug().Msg("Blank final transcript ignored")
		} else {
			o.logger.Debug().Err(err).Msg("Final transcript ignored")
		}
		return
	}
	transcriptID := o.transcript.ID()

	o.stopListening(ctx)

	res := o.resolver.Resolve(final)
	o.metrics.RecordQuery(string(res.Kind), res.Score)
	o.logger.Info().
		Str("transcriptId", transcriptID).
		Str("query", final).
		Str("kind", string(res.Kind)).
		Float64("score", res.Score).
		Msg("Query answered")

	o.st.Response = res.Answer
	o.speak(ctx, res.Answer)

	o.transcript.Reset(o.ids.Next(o.cfg.KioskID))
	o.st.Transcript = ""

	if o.notifier != nil {
		o.notifier.PublishAnswer(models.AnswerDispatched{
			EventType:    models.EventTypeAnswer,
			KioskID:      o.cfg.KioskID,
			Timestamp:    o.clock.Now().UnixMilli(),
			TranscriptID: transcriptID,
			Query:        final,
			Kind:         string(res.Kind),
			Answer:       res.Answer,
			Score:        res.Score,
			EntryIndex:   res.Index,
		})
	}
	o.publishState(o.st.State)
}

func (o *Orchestrator) handleTimer(ctx context.Context, e timerEvent) {
	slot := &o.timers[e.kind]
	if slot.handle == nil || slot.gen != e.gen {
		o.metrics.RecordStaleTimer(e.kind.String())
		o.logger.Debug().Str("timer", e.kind.String()).Msg("Stale timer ignored")
		return
	}
	slot.handle = nil

	switch e.kind {
	case timerListen:
		o.transition(StateListening)
		o.startListening(ctx)

	case timerHardReset:
		o.clearFlags("hard")

	case timerAbsence:
		o.cancel(timerHardReset)
		o.clearFlags("absence")
		if o.st.State == StateListening {
			o.transition(StateIdle)
			o.stopListening(ctx)
		}
	}
}

func (o *Orchestrator) handleRestart(ctx context.Context) {
	o.logger.Info().Str("state", o.st.State.String()).Msg("Voice restart requested")
	o.stopListening(ctx)
	o.startListening(ctx)
}

func (o *Orchestrator) clearFlags(reason string) {
	if !o.st.Cooldown && !o.st.WelcomeTriggered {
		return
	}
	o.st.Cooldown = false
	o.st.WelcomeTriggered = false
	o.metrics.RecordFlagReset(reason)
	o.logger.Info().Str("reason", reason).Msg("Greeting triggers reset")
	o.publishState(o.st.State)
}

func (o *Orchestrator) transition(to State) {
	from := o.st.State
	if from == to {
		return
	}
	o.st.State = to
	o.metrics.RecordTransition(from.String(), to.String())
	o.logger.Info().Str("from", from.String()).Str("to", to.String()).Msg("State transition")
	o.publishState(from)
}

// --- voice commands ---

func (o *Orchestrator) speak(ctx context.Context, text string) {
	if o.voice == nil {
		return
	}
	if err := o.voice.Speak(ctx, text); err != nil {
		o.logger.Warn().Err(err).Msg("Speak failed")
		o.handleVoice(ctx, voiceEvent{kind: speechFailed, err: err})
	}
}

func (o *Orchestrator) startListening(ctx context.Context) {
	if o.voice == nil {
		return
	}
	if err := o.voice.StartListening(ctx); err != nil {
		o.logger.Debug().Err(err).Msg("Start listening failed")
	}
}

func (o *Orchestrator) stopListening(ctx context.Context) {
	if o.voice == nil {
		return
	}
	if err := o.voice.StopListening(ctx); err != nil {
		o.logger.Debug().Err(err).Msg("Stop listening failed")
	}
}

// --- timers ---

// arm (re)starts a timer from scratch; any previous handle is cancelled.
func (o *Orchestrator) arm(kind timerKind, d time.Duration) {
	o.cancel(kind)
	slot := &o.timers[kind]
	gen := slot.gen
	slot.handle = o.clock.AfterFunc(d, func() {
		o.post(timerEvent{kind: kind, gen: gen})
	})
}

func (o *Orchestrator) cancel(kind timerKind) {
	slot := &o.timers[kind]
	if slot.handle != nil {
		slot.handle.Stop()
		slot.handle = nil
	}
	slot.gen++
}

func (o *Orchestrator) armed(kind timerKind) bool {
	return o.timers[kind].handle != nil
}

func (o *Orchestrator) cancelAll() {
	for k := timerKind(0); k < numTimers; k++ {
		o.cancel(k)
	}
}

// --- state publication ---

func (o *Orchestrator) publishState(prev State) {
	o.snapshotStatus()
	if o.notifier == nil {
		return
	}

	ev := models.StateChanged{
		EventType:        models.EventTypeStateChanged,
		KioskID:          o.cfg.KioskID,
		Timestamp:        o.clock.Now().UnixMilli(),
		State:            o.st.State.String(),
		PersonCount:      o.st.Presence.PersonCount,
		AnyClose:         o.st.Presence.AnyClose,
		Cooldown:         o.st.Cooldown,
		WelcomeTriggered: o.st.WelcomeTriggered,
		Response:         o.st.Response,
		Transcript:       o.st.Transcript,
	}
	if prev != o.st.State {
		ev.PreviousState = prev.String()
	}
	for _, p := range o.st.Presence.Persons {
		ev.Persons = append(ev.Persons, models.PersonBox{
			X:      p.BBox.X,
			Y:      p.BBox.Y,
			Width:  p.BBox.Width,
			Height: p.BBox.Height,
			Score:  p.Score,
			Close:  p.Close,
		})
	}
	o.notifier.PublishState(ev)
}

func (o *Orchestrator) snapshotStatus() {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	o.status = Status{
		KioskID:          o.cfg.KioskID,
		State:            o.st.State.String(),
		Cooldown:         o.st.Cooldown,
		WelcomeTriggered: o.st.WelcomeTriggered,
		DetectorReady:    o.st.DetectorReady,
		Presence:         o.st.Presence,
		Response:         o.st.Response,
		Transcript:       o.st.Transcript,
		UpdatedAt:        o.clock.Now(),
	}
}

var (
	_ vision.Sink  = (*Orchestrator)(nil)
	_ voice.Events = (*Orchestrator)(nil)
)
