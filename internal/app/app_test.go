package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expo-kiosk-service/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Service: config.ServiceConfig{KioskID: "kiosk-app-test"},
		Camera: config.CameraConfig{
			Source:        "mock",
			FrameInterval: time.Millisecond,
			MockWidth:     640,
			MockHeight:    480,
		},
		Detector: config.DetectorConfig{Provider: "mock"},
		Presence: config.PresenceConfig{Label: "person", MinConfidence: 0.5, CloseAreaRatio: 0.15},
		Interaction: config.InteractionConfig{
			ListenDelay:  5 * time.Second,
			HardReset:    15 * time.Second,
			AbsenceReset: 3 * time.Second,
		},
		Voice:  config.VoiceConfig{Language: "en-US", Rate: 1, Pitch: 1, RestartDelay: 100 * time.Millisecond},
		STT:    config.STTConfig{Provider: "browser"},
		Answer: config.AnswerConfig{CorpusPath: "../../data/projects.yaml", FuzzyThreshold: 0.6, FuzzyAlgorithm: "levenshtein"},
		Observability: config.ObservabilityConfig{
			LogLevel:  "error",
			LogFormat: "json",
		},
	}
}

func TestNew_MockProviders(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)

	assert.True(t, a.Ready())
	assert.Equal(t, 6, a.Resolver.Len())
	assert.Equal(t, "IDLE", a.Orchestrator.Status().State)
	assert.Equal(t, "kiosk-app-test", a.Orchestrator.Status().KioskID)
}

func TestNew_UnknownProviders(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"detector", func(c *config.Config) { c.Detector.Provider = "tflite" }},
		{"camera", func(c *config.Config) { c.Camera.Source = "usb" }},
		{"stt", func(c *config.Config) { c.STT.Provider = "whisper" }},
		{"algorithm", func(c *config.Config) { c.Answer.FuzzyAlgorithm = "soundex" }},
		{"corpus", func(c *config.Config) { c.Answer.CorpusPath = "does-not-exist.yaml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewAudioOpener(t *testing.T) {
	opener, err := newAudioOpener(config.STTConfig{Provider: "browser"})
	require.NoError(t, err)
	assert.Nil(t, opener, "browser recognition needs no server-side stream")

	opener, err = newAudioOpener(config.STTConfig{Provider: "mock"})
	require.NoError(t, err)
	assert.NotNil(t, opener)
}

func TestDemoScript(t *testing.T) {
	script := demoScript()
	require.NotEmpty(t, script)
	assert.Empty(t, script[0])
	last := script[len(script)-1]
	require.Len(t, last, 1)
	assert.Equal(t, "person", last[0].Class)
}

func TestRun_WelcomesMockVisitor(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return a.Orchestrator.Status().State == "WELCOMING"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	a.Shutdown()
}
