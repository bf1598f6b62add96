package kiosk

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expo-kiosk-service/internal/models"
	"expo-kiosk-service/internal/service/answer"
	"expo-kiosk-service/internal/service/detect"
	"expo-kiosk-service/internal/service/presence"
	"expo-kiosk-service/internal/service/vision"
)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs due callbacks in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

type fakeVoice struct {
	mu        sync.Mutex
	spoken    []string
	starts    int
	stops     int
	listening bool
	speakErr  error
}

func (v *fakeVoice) Speak(ctx context.Context, text string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.spoken = append(v.spoken, text)
	return v.speakErr
}

func (v *fakeVoice) StartListening(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.listening {
		v.listening = true
		v.starts++
	}
	return nil
}

func (v *fakeVoice) StopListening(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.listening {
		v.listening = false
		v.stops++
	}
	return nil
}

func (v *fakeVoice) speakCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.spoken)
}

type fakeNotifier struct {
	mu      sync.Mutex
	states  []models.StateChanged
	answers []models.AnswerDispatched
}

func (n *fakeNotifier) PublishState(ev models.StateChanged) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, ev)
}

func (n *fakeNotifier) PublishAnswer(ev models.AnswerDispatched) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.answers = append(n.answers, ev)
}

type fakeDetector struct {
	ready bool
}

func (d *fakeDetector) Ready() bool { return d.ready }

type fixture struct {
	o        *Orchestrator
	clock    *fakeClock
	voice    *fakeVoice
	notifier *fakeNotifier
	detector *fakeDetector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	resolver, err := answer.NewResolver([]answer.Entry{
		{Name: "Solar Tracker", Keywords: []string{"solar tracker"}, Answer: "It follows the sun."},
		{Name: "Robot", Keywords: []string{"line follower"}, Answer: "It follows a black line."},
	}, answer.DefaultConfig())
	require.NoError(t, err)

	f := &fixture{
		clock:    newFakeClock(),
		voice:    &fakeVoice{},
		notifier: &fakeNotifier{},
		detector: &fakeDetector{ready: true},
	}
	f.o = New(Config{KioskID: "kiosk-test"}, f.clock, f.voice, f.detector,
		presence.NewEstimator(presence.DefaultConfig()), resolver, f.notifier)
	return f
}

// pump handles every queued event on the calling goroutine.
func (f *fixture) pump() {
	ctx := context.Background()
	for {
		select {
		case obs := <-f.o.observations:
			f.o.handleObservation(ctx, obs)
		case ev := <-f.o.events:
			f.o.handle(ctx, ev)
		default:
			return
		}
	}
}

func (f *fixture) observe(obs vision.Observation) {
	f.o.PostObservation(obs)
	f.pump()
}

func (f *fixture) advance(d time.Duration) {
	f.clock.Advance(d)
	f.pump()
}

func closeVisitor() vision.Observation {
	return vision.Observation{
		Detections: []detect.Detection{
			{Class: "person", Score: 0.9, BBox: detect.BoundingBox{X: 100, Y: 80, Width: 400, Height: 300}},
		},
		Width:  640,
		Height: 480,
	}
}

func farVisitor() vision.Observation {
	return vision.Observation{
		Detections: []detect.Detection{
			{Class: "person", Score: 0.9, BBox: detect.BoundingBox{X: 10, Y: 10, Width: 50, Height: 100}},
		},
		Width:  640,
		Height: 480,
	}
}

func emptyFrame() vision.Observation {
	return vision.Observation{Width: 640, Height: 480}
}

func TestOrchestrator_WelcomesCloseVisitor(t *testing.T) {
	f := newFixture(t)

	f.observe(closeVisitor())

	st := f.o.st
	assert.Equal(t, StateWelcoming, st.State)
	assert.True(t, st.Cooldown)
	assert.True(t, st.WelcomeTriggered)
	require.Len(t, f.voice.spoken, 1)
	assert.Equal(t, DefaultConfig().WelcomeMessage, f.voice.spoken[0])

	require.NotEmpty(t, f.notifier.states)
	last := f.notifier.states[len(f.notifier.states)-1]
	assert.Equal(t, "WELCOMING", last.State)
	assert.Equal(t, "IDLE", last.PreviousState)
	assert.Equal(t, 1, last.PersonCount)
	require.Len(t, last.Persons, 1)
	assert.True(t, last.Persons[0].Close)

	status := f.o.Status()
	assert.Equal(t, "WELCOMING", status.State)
	assert.Equal(t, "kiosk-test", status.KioskID)
}

func TestOrchestrator_FarVisitorNotWelcomed(t *testing.T) {
	f := newFixture(t)

	f.observe(farVisitor())

	assert.Equal(t, StateIdle, f.o.st.State)
	assert.Empty(t, f.voice.spoken)
	assert.Equal(t, 1, f.o.st.Presence.PersonCount)
}

func TestOrchestrator_NoWelcomeWhileDetectorNotReady(t *testing.T) {
	f := newFixture(t)
	f.detector.ready = false

	f.observe(closeVisitor())

	assert.Equal(t, StateIdle, f.o.st.State)
	assert.Empty(t, f.voice.spoken)
	assert.Equal(t, 0, f.o.st.Presence.PersonCount, "estimator must not run before the detector is ready")

	f.detector.ready = true
	f.observe(closeVisitor())
	assert.Equal(t, StateWelcoming, f.o.st.State)
}

func TestOrchestrator_WelcomeAtMostOncePerEpisode(t *testing.T) {
	f := newFixture(t)

	f.observe(closeVisitor())
	// Proximity flickers across the threshold.
	for i := 0; i < 5; i++ {
		f.observe(farVisitor())
		f.observe(closeVisitor())
		f.advance(time.Second)
	}
	// Back to IDLE through speech, still the same episode.
	f.o.OnSpeechStart()
	f.o.OnSpeechEnd()
	f.pump()
	f.observe(closeVisitor())

	assert.Equal(t, 1, f.voice.speakCount())
}

func TestOrchestrator_ListeningExactlyAfterListenDelay(t *testing.T) {
	f := newFixture(t)

	f.observe(closeVisitor())
	f.advance(time.Second)
	f.observe(emptyFrame())
	f.advance(2 * time.Second)
	f.observe(farVisitor())
	f.advance(time.Second + 999*time.Millisecond)

	assert.Equal(t, StateWelcoming, f.o.st.State)
	assert.Equal(t, 0, f.voice.starts)

	f.advance(time.Millisecond)

	assert.Equal(t, StateListening, f.o.st.State)
	assert.Equal(t, 1, f.voice.starts)
}

func TestOrchestrator_ListeningDespiteAbsenceReset(t *testing.T) {
	f := newFixture(t)

	f.observe(closeVisitor())
	f.advance(time.Second)
	f.observe(emptyFrame())
	f.advance(3 * time.Second)

	// Flags cleared while WELCOMING; the state itself is untouched.
	assert.False(t, f.o.st.Cooldown)
	assert.False(t, f.o.st.WelcomeTriggered)
	assert.Equal(t, StateWelcoming, f.o.st.State)

	f.advance(time.Second)
	assert.Equal(t, StateListening, f.o.st.State)
}

func TestOrchestrator_HardReset(t *testing.T) {
	f := newFixture(t)

	f.observe(closeVisitor())
	f.advance(15*time.Second - time.Millisecond)
	assert.True(t, f.o.st.Cooldown)
	assert.True(t, f.o.st.WelcomeTriggered)

	f.advance(time.Millisecond)
	assert.False(t, f.o.st.Cooldown)
	assert.False(t, f.o.st.WelcomeTriggered)
	assert.Equal(t, StateListening, f.o.st.State)
}

func TestOrchestrator_AbsenceAfterHardResetReturnsToIdle(t *testing.T) {
	f := newFixture(t)

	f.observe(closeVisitor())
	f.advance(16 * time.Second)
	require.Equal(t, StateListening, f.o.st.State)
	require.False(t, f.o.st.Cooldown)
	require.False(t, f.o.st.WelcomeTriggered)

	f.observe(emptyFrame())
	f.advance(3*time.Second - time.Millisecond)
	assert.Equal(t, StateListening, f.o.st.State)

	f.advance(time.Millisecond)
	assert.Equal(t, StateIdle, f.o.st.State)
	assert.False(t, f.voice.listening)

	f.observe(closeVisitor())
	assert.Equal(t, StateWelcoming, f.o.st.State)
	assert.Equal(t, 2, f.voice.speakCount())
}

func TestOrchestrator_AbsenceDuringWelcomeEndsIdle(t *testing.T) {
	f := newFixture(t)

	f.observe(closeVisitor())
	f.advance(time.Second)
	f.observe(emptyFrame())
	f.advance(3 * time.Second)
	require.False(t, f.o.st.Cooldown)
	require.Equal(t, StateWelcoming, f.o.st.State)

	// Nobody comes back: LISTENING at +5, then IDLE once the absence
	// window runs out again.
	for i := 0; i < 10; i++ {
		f.observe(emptyFrame())
		f.advance(500 * time.Millisecond)
	}
	assert.Equal(t, StateIdle, f.o.st.State)

	f.observe(closeVisitor())
	assert.Equal(t, StateWelcoming, f.o.st.State)
	assert.Equal(t, 2, f.voice.speakCount())
}

func TestOrchestrator_AbsenceResetReturnsToIdle(t *testing.T) {
	f := newFixture(t)

	f.observe(closeVisitor())
	f.advance(5 * time.Second)
	require.Equal(t, StateListening, f.o.st.State)

	f.observe(emptyFrame())
	f.advance(3*time.Second - time.Millisecond)
	assert.True(t, f.o.st.Cooldown)
	assert.Equal(t, StateListening, f.o.st.State)

	f.advance(time.Millisecond)
	assert.False(t, f.o.st.Cooldown)
	assert.False(t, f.o.st.WelcomeTriggered)
	assert.Equal(t, StateIdle, f.o.st.State)
	assert.Equal(t, 1, f.voice.stops)
	assert.False(t, f.voice.listening)

	// Next approach is a new episode.
	f.observe(closeVisitor())
	assert.Equal(t, StateWelcoming, f.o.st.State)
	assert.Equal(t, 2, f.voice.speakCount())
}

func TestOrchestrator_AbsenceResetCancelsHardReset(t *testing.T) {
	f := newFixture(t)

	f.observe(closeVisitor())
	f.advance(5 * time.Second)
	f.observe(emptyFrame())
	f.advance(3 * time.Second)
	require.Equal(t, StateIdle, f.o.st.State)

	// A new welcome at +8s; the first hard reset (+15s) must not clear it.
	f.observe(closeVisitor())
	f.advance(7 * time.Second)
	assert.True(t, f.o.st.Cooldown)
	assert.True(t, f.o.st.WelcomeTriggered)
}

func TestOrchestrator_ReappearanceCancelsAbsenceTimer(t *testing.T) {
	f := newFixture(t)

	f.observe(closeVisitor())
	f.advance(5 * time.Second)

	f.observe(emptyFrame())
	f.advance(2 * time.Second)
	f.observe(farVisitor())
	f.advance(2 * time.Second)
	assert.True(t, f.o.st.Cooldown, "reset must not fire after the visitor came back")

	// Absent again: the window restarts from scratch.
	f.observe(emptyFrame())
	f.advance(2900 * time.Millisecond)
	assert.True(t, f.o.st.Cooldown)
	f.advance(100 * time.Millisecond)
	assert.False(t, f.o.st.Cooldown)
}

func TestOrchestrator_RepeatedEmptyFramesDoNotRearmAbsence(t *testing.T) {
	f := newFixture(t)

	f.observe(closeVisitor())
	f.advance(5 * time.Second)

	for i := 0; i < 6; i++ {
		f.observe(emptyFrame())
		f.advance(500 * time.Millisecond)
	}
	assert.False(t, f.o.st.Cooldown)
	assert.Equal(t, StateIdle, f.o.st.State)
}

func TestOrchestrator_StaleTimerIgnored(t *testing.T) {
	f := newFixture(t)

	f.observe(closeVisitor())
	f.advance(5 * time.Second)
	f.observe(emptyFrame())

	// The absence timer fires but the visitor is back before the loop sees it.
	f.clock.Advance(3 * time.Second)
	f.o.handleObservation(context.Background(), farVisitor())
	f.pump()

	assert.True(t, f.o.st.Cooldown)
	assert.Equal(t, StateListening, f.o.st.State)
}

func TestOrchestrator_SpeechCycle(t *testing.T) {
	f := newFixture(t)

	f.o.OnSpeechStart()
	f.pump()
	assert.Equal(t, StateSpeaking, f.o.st.State)
	assert.False(t, f.o.st.Cooldown, "speech must not touch the greeting flags")

	f.o.OnSpeechEnd()
	f.pump()
	assert.Equal(t, StateListening, f.o.st.State)
	assert.Equal(t, 1, f.voice.starts)

	// Speech end outside SPEAKING is ignored.
	f.o.OnSpeechEnd()
	f.pump()
	assert.Equal(t, StateListening, f.o.st.State)
	assert.Equal(t, 1, f.voice.starts)
}

func TestOrchestrator_ShortWelcomeListensWhenSpeechEnds(t *testing.T) {
	f := newFixture(t)

	f.observe(closeVisitor())
	f.o.OnSpeechStart()
	f.pump()
	f.advance(2 * time.Second)
	f.o.OnSpeechEnd()
	f.pump()

	// Speech end wins over the listen delay.
	assert.Equal(t, StateListening, f.o.st.State)
	assert.Equal(t, 1, f.voice.starts)

	// The listen timer still fires but opens no second session.
	f.advance(3 * time.Second)
	assert.Equal(t, StateListening, f.o.st.State)
	assert.Equal(t, 1, f.voice.starts)
}

func TestOrchestrator_SpeechErrorActsAsSpeechEnd(t *testing.T) {
	f := newFixture(t)

	f.o.OnSpeechStart()
	f.o.OnSpeechError(errors.New("synthesis-failed"))
	f.pump()

	assert.Equal(t, StateListening, f.o.st.State)
	assert.True(t, f.voice.listening)
}

func TestOrchestrator_FinalTranscriptAnswered(t *testing.T) {
	f := newFixture(t)

	f.observe(closeVisitor())
	f.advance(5 * time.Second)
	require.True(t, f.voice.listening)

	f.o.OnTranscriptUpdate("tell me about")
	f.pump()
	assert.Equal(t, "tell me about", f.o.Status().Transcript)

	f.o.OnTranscriptFinal("  tell me about the solar tracker ")
	f.pump()

	assert.False(t, f.voice.listening, "recognition stops while the answer is spoken")
	require.Equal(t, 2, f.voice.speakCount())
	assert.Equal(t, "It follows the sun.", f.voice.spoken[1])
	assert.Equal(t, "It follows the sun.", f.o.st.Response)
	assert.Empty(t, f.o.st.Transcript)

	require.Len(t, f.notifier.answers, 1)
	ev := f.notifier.answers[0]
	assert.Equal(t, models.EventTypeAnswer, ev.EventType)
	assert.Equal(t, "tell me about the solar tracker", ev.Query)
	assert.Equal(t, "match", ev.Kind)
	assert.Equal(t, 0, ev.EntryIndex)
	assert.Equal(t, "kiosk-test-utt-1", ev.TranscriptID)

	// The answer plays, then listening resumes.
	f.o.OnSpeechStart()
	f.o.OnSpeechEnd()
	f.pump()
	assert.Equal(t, StateListening, f.o.st.State)
	assert.True(t, f.voice.listening)

	// Next utterance gets a fresh transcript.
	f.o.OnTranscriptFinal("hello")
	f.pump()
	require.Len(t, f.notifier.answers, 2)
	assert.Equal(t, "greeting", f.notifier.answers[1].Kind)
	assert.NotEqual(t, ev.TranscriptID, f.notifier.answers[1].TranscriptID)
}

func TestOrchestrator_BlankFinalIgnored(t *testing.T) {
	f := newFixture(t)

	f.o.OnTranscriptFinal("   ")
	f.pump()

	assert.Empty(t, f.voice.spoken)
	assert.Empty(t, f.notifier.answers)
}

func TestOrchestrator_FailedAnswerResumesListening(t *testing.T) {
	f := newFixture(t)

	f.observe(closeVisitor())
	f.advance(5 * time.Second)
	f.voice.speakErr = errors.New("no panel")

	f.o.OnTranscriptFinal("what is the line follower")
	f.pump()

	assert.Equal(t, StateListening, f.o.st.State)
	assert.True(t, f.voice.listening)
	require.Len(t, f.notifier.answers, 1)
	assert.Equal(t, "It follows a black line.", f.notifier.answers[0].Answer)
}

func TestOrchestrator_FailedWelcomeStillListens(t *testing.T) {
	f := newFixture(t)
	f.voice.speakErr = errors.New("no panel")

	f.observe(closeVisitor())
	assert.Equal(t, StateWelcoming, f.o.st.State)

	f.advance(5 * time.Second)
	assert.Equal(t, StateListening, f.o.st.State)
}

func TestOrchestrator_RestartVoice(t *testing.T) {
	f := newFixture(t)
	f.voice.listening = true

	f.o.RestartVoice()
	f.pump()

	assert.Equal(t, 1, f.voice.stops)
	assert.Equal(t, 1, f.voice.starts)
	assert.True(t, f.voice.listening)
}

func TestOrchestrator_PostObservationKeepsLatest(t *testing.T) {
	f := newFixture(t)

	f.o.PostObservation(emptyFrame())
	f.o.PostObservation(farVisitor())

	require.Len(t, f.o.observations, 1)
	obs := <-f.o.observations
	assert.Len(t, obs.Detections, 1)
}

func TestOrchestrator_Run(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.o.Run(ctx) }()

	f.o.PostObservation(closeVisitor())
	require.Eventually(t, func() bool {
		return f.o.Status().State == "WELCOMING"
	}, time.Second, 5*time.Millisecond)

	f.clock.Advance(5 * time.Second)
	require.Eventually(t, func() bool {
		return f.o.Status().State == "LISTENING"
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// Events after shutdown are dropped without blocking.
	for i := 0; i < 100; i++ {
		f.o.OnSpeechEnd()
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "IDLE"},
		{StateWelcoming, "WELCOMING"},
		{StateListening, "LISTENING"},
		{StateSpeaking, "SPEAKING"},
		{State(42), "UNKNOWN(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", int(tt.state), got, tt.want)
		}
	}
}
