package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mahidalhan/axon/internal/config"
	"github.com/mahidalhan/axon/internal/database"
	"github.com/mahidalhan/axon/internal/handlers"
	logger "github.com/mahidalhan/axon/internal/logging"
	"github.com/mahidalhan/axon/internal/lri"
	"github.com/mahidalhan/axon/internal/observability"
	"github.com/mahidalhan/axon/internal/pipeline"
	"github.com/mahidalhan/axon/internal/repository"
	"github.com/mahidalhan/axon/internal/router"
	"github.com/mahidalhan/axon/internal/scoring"
	"github.com/mahidalhan/axon/internal/services"
	"github.com/mahidalhan/axon/internal/stream"
	"github.com/mahidalhan/axon/internal/windowing"

	"go.uber.org/zap"
)

func main() {
	root := flag.String("root", ".", "project root holding config/ and logs/")
	process := flag.Bool("process", false, "analyse the CSV files given as arguments and exit")
	flag.Parse()

	// Config comes first so the logger can honour its rotation settings;
	// a bootstrap logger reports config problems.
	bootstrap, _ := zap.NewProduction()
	if err := config.Init(*root, bootstrap); err != nil {
		bootstrap.Fatal("Failed to load configuration", zap.Error(err))
	}

	log, err := logger.Init(*root, config.Conf.Logging)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	profile, err := loadProfile(config.Conf.Scoring)
	if err != nil {
		log.Fatal("Failed to load scoring profile", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	runner := pipeline.NewRunner(pipelineConfig(config.Conf), profile, log, metrics)

	if *process {
		if err := runBatch(runner, flag.Args(), log); err != nil {
			log.Fatal("Batch processing failed", zap.Error(err))
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := stream.NewRegistry(registryConfig(config.Conf), lri.NewCalculator(profile.LRI), log, metrics)
	defer registry.Close()

	h := router.Handlers{
		Realtime: handlers.NewRealtimeHandler(log, registry, realtimeOptions),
	}

	// A nil *repository.Store must not reach the SessionStore interface.
	var sessionStore handlers.SessionStore
	if config.Conf.Database.Enabled {
		if err := database.Init(config.Conf.Database, log); err != nil {
			log.Fatal("Failed to initialize database", zap.Error(err))
		}
		defer database.Close()
		store := repository.New(database.DB)
		sessionStore = store

		scheduler := services.NewScheduler(log, store, runner, profile.BrainScore, config.Conf.Scheduler.RollupTime)
		scheduler.Start(ctx)
		services.NewRecorder(log, store, registry, config.Conf.Scheduler.RecordInterval).Start(ctx)

		h.Scores = handlers.NewScoresHandler(log, store, scheduler.RunRollup)
	} else {
		log.Warn("Database disabled; scores, sleep records and session history are unavailable")
	}
	h.Sessions = handlers.NewSessionHandler(log, runner, sessionStore)

	r := router.Setup(log, h, router.Options{
		RateLimit: config.Conf.Server.RateLimit,
		Metrics:   metrics,
	})

	srv := &http.Server{
		Addr:              ":" + config.Conf.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Server listening on http://localhost:" + config.Conf.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to run HTTP server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Conf.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
}

// loadProfile reads the optional scoring profile and applies the thresholds
// set in the main config on top of it.
func loadProfile(c config.ScoringConfig) (scoring.Profile, error) {
	profile := scoring.Default()
	if c.ProfilePath != "" {
		p, err := scoring.LoadProfile(c.ProfilePath)
		if err != nil {
			return scoring.Profile{}, err
		}
		profile = p
	}
	if c.OptimalLRIThreshold > 0 {
		profile.LRI.OptimalThreshold = c.OptimalLRIThreshold
	}
	return profile, profile.Validate()
}

func pipelineConfig(c *config.Config) pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Windowing = windowing.Config{
		WindowSize:  config.Seconds(c.Windowing.WindowSizeSeconds),
		Step:        config.Seconds(c.Windowing.StepSeconds),
		MinCoverage: c.Windowing.MinWindowCoverage,
	}
	cfg.HSIThreshold = c.Quality.HSIThreshold
	if c.Scoring.PostExerciseMultiplier > 0 {
		cfg.PostExerciseBoost = c.Scoring.PostExerciseMultiplier
	}
	cfg.Workers = c.Pipeline.Workers
	cfg.OutputDir = c.Pipeline.OutputDir
	return cfg
}

func registryConfig(c *config.Config) stream.RegistryConfig {
	return stream.RegistryConfig{
		Manager: stream.ManagerConfig{
			SamplingRate:           c.Stream.SamplingRate,
			WindowSeconds:          c.Stream.RealtimeWindowSeconds,
			RecomputeEvery:         c.Stream.RecomputeEvery,
			PostExerciseMultiplier: 1.0,
		},
		MQTT: stream.MQTTConfig{
			Broker:         c.Stream.MQTT.Broker,
			TopicPrefix:    c.Stream.MQTT.TopicPrefix,
			ClientID:       c.Stream.MQTT.ClientID,
			QoS:            byte(c.Stream.MQTT.QoS),
			ConnectTimeout: c.Stream.MQTT.ConnectTimeout,
			BufferSize:     c.Stream.BufferSize,
		},
		Simulator:         stream.SimulatorConfig{BufferSize: c.Stream.BufferSize},
		PostExerciseBoost: c.Scoring.PostExerciseMultiplier,
	}
}

// realtimeOptions is read per request so config reloads reach the handlers.
func realtimeOptions() handlers.RealtimeOptions {
	c := config.Current()
	return handlers.RealtimeOptions{
		Simulation:      c.Stream.Simulation,
		DiscoverTimeout: c.Stream.DiscoverTimeout,
		PushInterval:    c.Stream.PushInterval,
	}
}

func runBatch(runner *pipeline.Runner, paths []string, log *zap.Logger) error {
	if len(paths) == 0 {
		return errors.New("no input files given")
	}
	results, err := runner.ProcessFiles(context.Background(), paths)
	if err != nil {
		return err
	}
	for _, res := range results {
		log.Info("Processed session",
			zap.String("participant", res.ParticipantID),
			zap.Int("windows", len(res.Windows)),
			zap.Float64("session_score", res.Summary.SessionScore),
			zap.String("summary", res.SessionPath))
	}
	days, err := runner.RollupResults(context.Background(), results)
	if err != nil {
		return err
	}
	for _, d := range days {
		log.Info("Daily rollup",
			zap.String("date", d.Date.Format(time.DateOnly)),
			zap.Float64("dnos", d.DNOS),
			zap.Float64("avg_lri", d.AvgLRI))
	}
	return nil
}
