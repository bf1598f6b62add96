// Package config loads the kiosk service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config is the full service configuration.
type Config struct {
	Service       ServiceConfig
	Camera        CameraConfig
	Detector      DetectorConfig
	Presence      PresenceConfig
	Interaction   InteractionConfig
	Voice         VoiceConfig
	STT           STTConfig
	Answer        AnswerConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig identifies the kiosk and its listeners.
type ServiceConfig struct {
	KioskID     string
	Principal   string
	HTTPPort    string
	GRPCPort    string
	MetricsPort string
}

// CameraConfig controls where frames come from.
type CameraConfig struct {
	Source        string // http, mock
	SnapshotURL   string
	FrameInterval time.Duration
	Timeout       time.Duration
	MockWidth     int
	MockHeight    int
}

// DetectorConfig controls the object-detection adapter.
type DetectorConfig struct {
	Provider       string // http, mock
	InferenceURL   string
	Timeout        time.Duration
	HealthInterval time.Duration
}

// PresenceConfig holds the per-frame presence thresholds.
type PresenceConfig struct {
	Label          string
	MinConfidence  float64
	CloseAreaRatio float64
}

// InteractionConfig holds the state machine timings and the greeting.
type InteractionConfig struct {
	ListenDelay    time.Duration
	HardReset      time.Duration
	AbsenceReset   time.Duration
	WelcomeMessage string
}

// VoiceConfig controls the panel voice bridge.
type VoiceConfig struct {
	Language      string
	VoiceName     string
	Rate          float64
	Pitch         float64
	RestartDelay  time.Duration
	AllowInsecure bool
	WriteTimeout  time.Duration
	PingInterval  time.Duration
}

// STTConfig selects who performs speech recognition. "browser" leaves it to the panel.
type STTConfig struct {
	Provider       string // browser, google, mock
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
	MaxAudioBytes  int64
	MaxDuration    time.Duration
	MaxPartials    int
}

// AnswerConfig controls the Q&A resolver.
type AnswerConfig struct {
	CorpusPath     string
	FuzzyThreshold float64
	FuzzyAlgorithm string
	GreetingReply  string
	StatusReply    string
	NoMatchReply   string
}

// KafkaConfig holds interaction event publisher settings.
type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	TopicState  string
	TopicAnswer string
	Principal   string
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to read .env file, using process environment")
	}

	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-expo-kiosk")

	return &Config{
		Service: ServiceConfig{
			KioskID:     envOrDefault("KIOSK_ID", "expo-kiosk-1"),
			Principal:   principal,
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
		Camera: CameraConfig{
			Source:        envOrDefault("CAMERA_SOURCE", "mock"),
			SnapshotURL:   envOrDefault("CAMERA_SNAPSHOT_URL", "http://localhost:8554/snapshot.jpg"),
			FrameInterval: envOrDefaultDuration("CAMERA_FRAME_INTERVAL", 66*time.Millisecond),
			Timeout:       envOrDefaultDuration("CAMERA_TIMEOUT", 2*time.Second),
			MockWidth:     envOrDefaultInt("CAMERA_MOCK_WIDTH", 640),
			MockHeight:    envOrDefaultInt("CAMERA_MOCK_HEIGHT", 480),
		},
		Detector: DetectorConfig{
			Provider:       envOrDefault("DETECTOR_PROVIDER", "mock"),
			InferenceURL:   envOrDefault("DETECTOR_INFERENCE_URL", "http://localhost:5000"),
			Timeout:        envOrDefaultDuration("DETECTOR_TIMEOUT", 2*time.Second),
			HealthInterval: envOrDefaultDuration("DETECTOR_HEALTH_INTERVAL", 5*time.Second),
		},
		Presence: PresenceConfig{
			Label:          envOrDefault("PRESENCE_LABEL", "person"),
			MinConfidence:  envOrDefaultFloat("PRESENCE_MIN_CONFIDENCE", 0.5),
			CloseAreaRatio: envOrDefaultFloat("PRESENCE_CLOSE_AREA_RATIO", 0.15),
		},
		Interaction: InteractionConfig{
			ListenDelay:  envOrDefaultDuration("INTERACTION_LISTEN_DELAY", 5*time.Second),
			HardReset:    envOrDefaultDuration("INTERACTION_HARD_RESET", 15*time.Second),
			AbsenceReset: envOrDefaultDuration("INTERACTION_ABSENCE_RESET", 3*time.Second),
			WelcomeMessage: envOrDefault("INTERACTION_WELCOME_MESSAGE",
				"Hello! Welcome to our Tech Expo. I am your AI assistant. How can I help you today?"),
		},
		Voice: VoiceConfig{
			Language:      envOrDefault("VOICE_LANGUAGE", "en-US"),
			VoiceName:     envOrDefault("VOICE_NAME", ""),
			Rate:          envOrDefaultFloat("VOICE_RATE", 1.0),
			Pitch:         envOrDefaultFloat("VOICE_PITCH", 1.0),
			RestartDelay:  envOrDefaultDuration("VOICE_RESTART_DELAY", 100*time.Millisecond),
			AllowInsecure: envOrDefaultBool("VOICE_ALLOW_INSECURE", false),
			WriteTimeout:  envOrDefaultDuration("VOICE_WRITE_TIMEOUT", 5*time.Second),
			PingInterval:  envOrDefaultDuration("VOICE_PING_INTERVAL", 20*time.Second),
		},
		STT: STTConfig{
			Provider:       envOrDefault("STT_PROVIDER", "browser"),
			LanguageCode:   envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:   envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			InterimResults: envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:  envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			MaxAudioBytes:  envOrDefaultInt64("STT_MAX_AUDIO_BYTES", 5*1024*1024),
			MaxDuration:    envOrDefaultDuration("STT_MAX_DURATION", 5*time.Minute),
			MaxPartials:    envOrDefaultInt("STT_MAX_PARTIALS", 500),
		},
		Answer: AnswerConfig{
			CorpusPath:     envOrDefault("ANSWER_CORPUS_PATH", "data/projects.yaml"),
			FuzzyThreshold: envOrDefaultFloat("ANSWER_FUZZY_THRESHOLD", 0.6),
			FuzzyAlgorithm: envOrDefault("ANSWER_FUZZY_ALGORITHM", "levenshtein"),
			GreetingReply:  envOrDefault("ANSWER_GREETING_REPLY", "Hello! How can I help you regarding the projects?"),
			StatusReply:    envOrDefault("ANSWER_STATUS_REPLY", "I am doing great, thank you! I am ready to explain any project here."),
			NoMatchReply: envOrDefault("ANSWER_NO_MATCH_REPLY",
				"Sorry, I didn't quite catch that. Could you rephrase your question about the projects?"),
		},
		Kafka: KafkaConfig{
			Enabled:     envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:     envOrDefaultList("KAFKA_BROKERS", nil),
			TopicState:  envOrDefault("KAFKA_TOPIC_STATE", "kiosk.interaction.state"),
			TopicAnswer: envOrDefault("KAFKA_TOPIC_ANSWER", "kiosk.interaction.answer"),
			Principal:   envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// envOrDefaultList splits a comma separated value, dropping empty items.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
