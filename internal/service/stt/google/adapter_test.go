package google

import (
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.SampleRateHz)
	}
	if cfg.InterimResults != true {
		t.Errorf("expected default interim results true, got %v", cfg.InterimResults)
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"AMR", speechpb.RecognitionConfig_AMR},
		{"AMR_WB", speechpb.RecognitionConfig_AMR_WB},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"SPEEX_WITH_HEADER_BYTE", speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"UNKNOWN", speechpb.RecognitionConfig_LINEAR16},  // fallback
		{"linear16", speechpb.RecognitionConfig_LINEAR16}, // lowercase -> fallback
		{"", speechpb.RecognitionConfig_LINEAR16},         // fallback
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStreamingConfig(t *testing.T) {
	cfg := Config{
		LanguageCode:   "es-ES",
		SampleRateHz:   8000,
		InterimResults: false,
		AudioEncoding:  "MULAW",
	}

	sc := streamingConfig(cfg)

	if sc.Config.LanguageCode != "es-ES" {
		t.Errorf("expected language 'es-ES', got %s", sc.Config.LanguageCode)
	}
	if sc.Config.SampleRateHertz != 8000 {
		t.Errorf("expected sample rate 8000, got %d", sc.Config.SampleRateHertz)
	}
	if sc.Config.Encoding != speechpb.RecognitionConfig_MULAW {
		t.Errorf("expected MULAW, got %v", sc.Config.Encoding)
	}
	if sc.InterimResults {
		t.Error("expected interim results off")
	}
	if sc.EnableVoiceActivityEvents || sc.VoiceActivityTimeout != nil {
		t.Error("expected voice activity timeouts off by default")
	}
}

func TestStreamingConfig_VoiceActivityTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpeechStartTimeout = 8 * time.Second
	cfg.SpeechEndTimeout = 1500 * time.Millisecond

	sc := streamingConfig(cfg)

	if !sc.EnableVoiceActivityEvents {
		t.Fatal("expected voice activity events enabled")
	}
	if got := sc.VoiceActivityTimeout.SpeechStartTimeout.AsDuration(); got != 8*time.Second {
		t.Errorf("expected start timeout 8s, got %v", got)
	}
	if got := sc.VoiceActivityTimeout.SpeechEndTimeout.AsDuration(); got != 1500*time.Millisecond {
		t.Errorf("expected end timeout 1.5s, got %v", got)
	}
}
