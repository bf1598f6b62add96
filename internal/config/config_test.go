package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	envVars := []string{
		"KIOSK_ID", "SERVICE_PRINCIPAL", "HTTP_PORT", "GRPC_PORT", "LOG_LEVEL",
		"PRESENCE_MIN_CONFIDENCE", "PRESENCE_CLOSE_AREA_RATIO",
		"INTERACTION_LISTEN_DELAY", "INTERACTION_HARD_RESET", "INTERACTION_ABSENCE_RESET",
		"STT_PROVIDER", "STT_SAMPLE_RATE_HZ", "ANSWER_FUZZY_THRESHOLD", "KAFKA_BROKERS",
		"VOICE_RESTART_DELAY",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg := Load()

	if cfg.Service.KioskID != "expo-kiosk-1" {
		t.Errorf("expected default kiosk id 'expo-kiosk-1', got %s", cfg.Service.KioskID)
	}
	if cfg.Service.Principal != "svc-expo-kiosk" {
		t.Errorf("expected default principal 'svc-expo-kiosk', got %s", cfg.Service.Principal)
	}
	if cfg.Service.GRPCPort != "50051" {
		t.Errorf("expected default port '50051', got %s", cfg.Service.GRPCPort)
	}

	if cfg.Presence.Label != "person" {
		t.Errorf("expected default label 'person', got %s", cfg.Presence.Label)
	}
	if cfg.Presence.MinConfidence != 0.5 {
		t.Errorf("expected default min confidence 0.5, got %v", cfg.Presence.MinConfidence)
	}
	if cfg.Presence.CloseAreaRatio != 0.15 {
		t.Errorf("expected default close ratio 0.15, got %v", cfg.Presence.CloseAreaRatio)
	}

	if cfg.Interaction.ListenDelay != 5*time.Second {
		t.Errorf("expected default listen delay 5s, got %v", cfg.Interaction.ListenDelay)
	}
	if cfg.Interaction.HardReset != 15*time.Second {
		t.Errorf("expected default hard reset 15s, got %v", cfg.Interaction.HardReset)
	}
	if cfg.Interaction.AbsenceReset != 3*time.Second {
		t.Errorf("expected default absence reset 3s, got %v", cfg.Interaction.AbsenceReset)
	}

	if cfg.Voice.RestartDelay != 100*time.Millisecond {
		t.Errorf("expected default restart delay 100ms, got %v", cfg.Voice.RestartDelay)
	}
	if cfg.STT.Provider != "browser" {
		t.Errorf("expected default STT provider 'browser', got %s", cfg.STT.Provider)
	}
	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.Answer.FuzzyThreshold != 0.6 {
		t.Errorf("expected default fuzzy threshold 0.6, got %v", cfg.Answer.FuzzyThreshold)
	}
	if cfg.Kafka.Brokers != nil {
		t.Errorf("expected no default brokers, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("KIOSK_ID", "hall-b")
	os.Setenv("PRESENCE_CLOSE_AREA_RATIO", "0.2")
	os.Setenv("INTERACTION_LISTEN_DELAY", "2s")
	os.Setenv("STT_PROVIDER", "google")
	os.Setenv("ANSWER_FUZZY_THRESHOLD", "0.4")
	os.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	os.Setenv("LOG_LEVEL", "debug")

	defer func() {
		os.Unsetenv("KIOSK_ID")
		os.Unsetenv("PRESENCE_CLOSE_AREA_RATIO")
		os.Unsetenv("INTERACTION_LISTEN_DELAY")
		os.Unsetenv("STT_PROVIDER")
		os.Unsetenv("ANSWER_FUZZY_THRESHOLD")
		os.Unsetenv("KAFKA_BROKERS")
		os.Unsetenv("LOG_LEVEL")
	}()

	cfg := Load()

	if cfg.Service.KioskID != "hall-b" {
		t.Errorf("expected kiosk id 'hall-b', got %s", cfg.Service.KioskID)
	}
	if cfg.Presence.CloseAreaRatio != 0.2 {
		t.Errorf("expected close ratio 0.2, got %v", cfg.Presence.CloseAreaRatio)
	}
	if cfg.Interaction.ListenDelay != 2*time.Second {
		t.Errorf("expected listen delay 2s, got %v", cfg.Interaction.ListenDelay)
	}
	if cfg.STT.Provider != "google" {
		t.Errorf("expected STT provider 'google', got %s", cfg.STT.Provider)
	}
	if cfg.Answer.FuzzyThreshold != 0.4 {
		t.Errorf("expected fuzzy threshold 0.4, got %v", cfg.Answer.FuzzyThreshold)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "k1:9092" || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("expected brokers [k1:9092 k2:9092], got %v", cfg.Kafka.Brokers)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	os.Setenv("STT_SAMPLE_RATE_HZ", "not-a-number")
	os.Setenv("STT_INTERIM_RESULTS", "invalid")
	os.Setenv("INTERACTION_HARD_RESET", "invalid")
	os.Setenv("PRESENCE_MIN_CONFIDENCE", "high")
	os.Setenv("STT_MAX_AUDIO_BYTES", "invalid")

	defer func() {
		os.Unsetenv("STT_SAMPLE_RATE_HZ")
		os.Unsetenv("STT_INTERIM_RESULTS")
		os.Unsetenv("INTERACTION_HARD_RESET")
		os.Unsetenv("PRESENCE_MIN_CONFIDENCE")
		os.Unsetenv("STT_MAX_AUDIO_BYTES")
	}()

	cfg := Load()

	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.InterimResults != true {
		t.Errorf("expected default interim results on invalid input, got %v", cfg.STT.InterimResults)
	}
	if cfg.Interaction.HardReset != 15*time.Second {
		t.Errorf("expected default hard reset on invalid input, got %v", cfg.Interaction.HardReset)
	}
	if cfg.Presence.MinConfidence != 0.5 {
		t.Errorf("expected default min confidence on invalid input, got %v", cfg.Presence.MinConfidence)
	}
	if cfg.STT.MaxAudioBytes != 5*1024*1024 {
		t.Errorf("expected default max audio bytes on invalid input, got %d", cfg.STT.MaxAudioBytes)
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	os.Setenv("SERVICE_PRINCIPAL", "my-service")
	os.Unsetenv("KAFKA_PRINCIPAL")

	defer os.Unsetenv("SERVICE_PRINCIPAL")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}

func TestEnvOrDefaultList(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected []string
	}{
		{"single", "a", []string{"a"}},
		{"spaces", " a , b ", []string{"a", "b"}},
		{"only commas", ",,", nil},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_LIST_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultList(key, nil)
			if len(got) != len(tt.expected) {
				t.Fatalf("envOrDefaultList(%q) = %v, want %v", tt.envValue, got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("envOrDefaultList(%q)[%d] = %s, want %s", tt.envValue, i, got[i], tt.expected[i])
				}
			}
		})
	}
}
