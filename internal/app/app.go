package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"expo-kiosk-service/internal/config"
	"expo-kiosk-service/internal/events"
	"expo-kiosk-service/internal/kiosk"
	"expo-kiosk-service/internal/models"
	"expo-kiosk-service/internal/observability/logging"
	"expo-kiosk-service/internal/service/answer"
	"expo-kiosk-service/internal/service/audio"
	"expo-kiosk-service/internal/service/detect"
	detectmock "expo-kiosk-service/internal/service/detect/mock"
	"expo-kiosk-service/internal/service/presence"
	"expo-kiosk-service/internal/service/stt"
	"expo-kiosk-service/internal/service/stt/google"
	sttmock "expo-kiosk-service/internal/service/stt/mock"
	"expo-kiosk-service/internal/service/vision"
	"expo-kiosk-service/internal/service/voice"
	"expo-kiosk-service/internal/service/voice/bridge"
)

const serviceName = "expo-kiosk-service"

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Detector     detect.Detector
	Loop         *vision.Loop
	Resolver     *answer.Resolver
	Bus          *events.Bus
	Publisher    *events.Publisher
	Bridge       *bridge.Bridge
	Orchestrator *kiosk.Orchestrator
}

// New builds the kiosk from the provided configuration.
func New(cfg *config.Config) (*Application, error) {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	entries, err := answer.LoadCorpus(cfg.Answer.CorpusPath)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	a.Resolver, err = answer.NewResolver(entries, answer.Config{
		Threshold:     cfg.Answer.FuzzyThreshold,
		Algorithm:     cfg.Answer.FuzzyAlgorithm,
		GreetingReply: cfg.Answer.GreetingReply,
		StatusReply:   cfg.Answer.StatusReply,
		NoMatchReply:  cfg.Answer.NoMatchReply,
	})
	if err != nil {
		return nil, fmt.Errorf("build resolver: %w", err)
	}

	a.Detector, err = newDetector(cfg.Detector)
	if err != nil {
		return nil, err
	}
	source, err := newSource(cfg.Camera)
	if err != nil {
		return nil, err
	}
	opener, err := newAudioOpener(cfg.STT)
	if err != nil {
		return nil, err
	}

	a.Publisher = events.New(&events.Config{
		Enabled:     cfg.Kafka.Enabled,
		Brokers:     cfg.Kafka.Brokers,
		TopicState:  cfg.Kafka.TopicState,
		TopicAnswer: cfg.Kafka.TopicAnswer,
		Principal:   cfg.Kafka.Principal,
	})
	a.Bus = events.NewBus()

	a.Bridge = bridge.New(bridge.Config{
		KioskID: cfg.Service.KioskID,
		Options: voice.Options{
			Language: cfg.Voice.Language,
			Voice:    cfg.Voice.VoiceName,
			Rate:     cfg.Voice.Rate,
			Pitch:    cfg.Voice.Pitch,
		},
		RestartDelay:  cfg.Voice.RestartDelay,
		AllowInsecure: cfg.Voice.AllowInsecure,
		WriteTimeout:  cfg.Voice.WriteTimeout,
		PingInterval:  cfg.Voice.PingInterval,
		Audio:         opener,
	})

	a.Orchestrator = kiosk.New(
		kiosk.Config{
			KioskID:        cfg.Service.KioskID,
			WelcomeMessage: cfg.Interaction.WelcomeMessage,
			ListenDelay:    cfg.Interaction.ListenDelay,
			HardReset:      cfg.Interaction.HardReset,
			AbsenceReset:   cfg.Interaction.AbsenceReset,
		},
		kiosk.RealClock(),
		a.Bridge,
		a.Detector,
		presence.NewEstimator(presence.Config{
			Label:          cfg.Presence.Label,
			MinConfidence:  cfg.Presence.MinConfidence,
			CloseAreaRatio: cfg.Presence.CloseAreaRatio,
		}),
		a.Resolver,
		a.Bus,
	)
	a.Bridge.SetEvents(a.Orchestrator)
	a.Loop = vision.NewLoop(source, a.Detector, a.Orchestrator, cfg.Camera.FrameInterval)

	if err := a.subscribe(); err != nil {
		return nil, err
	}

	appLogger.Info().
		Str("kioskId", cfg.Service.KioskID).
		Str("detector", cfg.Detector.Provider).
		Str("camera", cfg.Camera.Source).
		Str("stt", cfg.STT.Provider).
		Int("corpusEntries", a.Resolver.Len()).
		Msg("Expo kiosk application created")
	return a, nil
}

// subscribe fans interaction events out to the panel and to Kafka.
func (a *Application) subscribe() error {
	if err := a.Bus.OnState(a.Bridge.PushState); err != nil {
		return fmt.Errorf("subscribe panel to state: %w", err)
	}
	if err := a.Bus.OnState(func(ev models.StateChanged) {
		_ = a.Publisher.PublishState(context.Background(), ev)
	}); err != nil {
		return fmt.Errorf("subscribe publisher to state: %w", err)
	}
	if err := a.Bus.OnAnswer(func(ev models.AnswerDispatched) {
		_ = a.Publisher.PublishAnswer(context.Background(), ev)
	}); err != nil {
		return fmt.Errorf("subscribe publisher to answers: %w", err)
	}
	return nil
}

func newDetector(cfg config.DetectorConfig) (detect.Detector, error) {
	switch cfg.Provider {
	case "http":
		return detect.NewHTTPDetector(detect.HTTPConfig{
			InferenceURL:   cfg.InferenceURL,
			Timeout:        cfg.Timeout,
			HealthInterval: cfg.HealthInterval,
		}), nil
	case "mock":
		return detectmock.New(demoScript()...), nil
	default:
		return nil, fmt.Errorf("unknown detector provider %q", cfg.Provider)
	}
}

// demoScript walks a visitor up to the mock kiosk: an empty scene, a
// visitor far away, then one standing close.
func demoScript() [][]detect.Detection {
	var script [][]detect.Detection
	for i := 0; i < 30; i++ {
		script = append(script, nil)
	}
	for i := 0; i < 15; i++ {
		script = append(script, []detect.Detection{detectmock.Person(0.8, 60, 140)})
	}
	return append(script, []detect.Detection{detectmock.Person(0.92, 320, 400)})
}

func newSource(cfg config.CameraConfig) (vision.Source, error) {
	switch cfg.Source {
	case "http":
		return vision.NewHTTPSource(cfg.SnapshotURL, cfg.Timeout), nil
	case "mock":
		return vision.NewMockSource(cfg.MockWidth, cfg.MockHeight), nil
	default:
		return nil, fmt.Errorf("unknown camera source %q", cfg.Source)
	}
}

// newAudioOpener returns nil for browser recognition.
func newAudioOpener(cfg config.STTConfig) (bridge.AudioOpener, error) {
	limits := audio.Limits{
		MaxAudioBytes: cfg.MaxAudioBytes,
		MaxDuration:   cfg.MaxDuration,
		MaxPartials:   cfg.MaxPartials,
	}

	switch cfg.Provider {
	case "browser", "":
		return nil, nil
	case "mock":
		return audio.Opener(func(ctx context.Context) (stt.Adapter, error) {
			return sttmock.New(), nil
		}, "mock", limits), nil
	case "google":
		gcfg := google.DefaultConfig()
		gcfg.LanguageCode = cfg.LanguageCode
		gcfg.SampleRateHz = cfg.SampleRateHz
		gcfg.InterimResults = cfg.InterimResults
		gcfg.AudioEncoding = cfg.AudioEncoding
		return audio.Opener(func(ctx context.Context) (stt.Adapter, error) {
			adapter, err := google.New(ctx, gcfg)
			if err != nil {
				return nil, err
			}
			return adapter, nil
		}, "google", limits), nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
	}
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:  a.Cfg.Observability.LogLevel,
		Format: a.Cfg.Observability.LogFormat,
	})

	a.Logger = log.With().
		Str("service", serviceName).
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", a.Cfg.Observability.LogFormat).
		Msg("Logger setup completed")
}

// Ready reports whether the detector can serve frames.
func (a *Application) Ready() bool {
	return a.Detector.Ready()
}

// Run starts the interaction loop, the detection loop and the detector
// health watcher, and blocks until ctx is cancelled or one of them fails.
func (a *Application) Run(ctx context.Context) error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Expo kiosk starting")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Orchestrator.Run(ctx)
	})
	g.Go(func() error {
		return a.Loop.Run(ctx)
	})
	if w, ok := a.Detector.(interface{ Watch(context.Context) }); ok {
		g.Go(func() error {
			w.Watch(ctx)
			return nil
		})
	}

	return g.Wait()
}

// Shutdown flushes pending events and closes the publisher.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Msg("Expo kiosk shutting down")
	a.Bus.Close()
	if err := a.Publisher.Close(); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Error closing event publisher")
	}
}
