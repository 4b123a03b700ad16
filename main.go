package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"salesproof/db"
	"salesproof/envelope"
	"salesproof/harness"
	qhttp "salesproof/http"
	"salesproof/logging"
	"salesproof/monitoring"
	"salesproof/registry"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Http     qhttp.ServerConfig     `yaml:"http"`
	Log      logging.Config         `yaml:"log"`
	Envelope envelope.Config        `yaml:"envelope"`
	Models   []registry.ModelConfig `yaml:"models"`
	Harness  struct {
		CacheSize int `yaml:"cache_size"`
	} `yaml:"harness"`
	Monitoring struct {
		Heartbeat time.Duration `yaml:"heartbeat"`
	} `yaml:"monitoring"`
	StrictScale bool `yaml:"strict_scale"`
	WatchModels bool `yaml:"watch_models"`
}

func main() {
	path := "config.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	config, err := loadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Must(config.Log)
	defer logger.Sync()

	if err := run(config, logger); err != nil {
		logger.Fatal("exiting", zap.Error(err))
	}
	logger.Info("exiting")
}

func run(config *Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := config.Database.Path != ""
	if store {
		if err := db.InitDB(config.Database.Path); err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		defer db.CloseDB()
		logger.Info("database initialized", zap.String("path", config.Database.Path))
	}

	models, err := registry.New(config.Models, config.StrictScale, logger.Named("registry"))
	if err != nil {
		return err
	}
	if err := models.Load(); err != nil {
		logger.Warn("some models failed to load", zap.Error(err))
	}
	if len(models.Names()) == 0 {
		return errors.New("no models loaded")
	}
	if config.WatchModels {
		go func() {
			if err := models.Watch(ctx); err != nil {
				logger.Error("model watcher stopped", zap.Error(err))
			}
		}()
	}

	env, err := envelope.New(config.Envelope)
	if err != nil {
		return err
	}
	proofs := harness.New(env,
		harness.WithCacheSize(config.Harness.CacheSize),
		harness.WithWorkers(config.Envelope.Workers),
		harness.WithLogger(logger.Named("harness")))

	hub := monitoring.NewHub(config.Monitoring.Heartbeat, logger.Named("ws"))
	go hub.Run(ctx)

	server := qhttp.NewServer(config.Http, &qhttp.API{
		Registry: models,
		Harness:  proofs,
		Hub:      hub,
		Metrics:  monitoring.NewMetricsCollector(),
		Logger:   logger.Named("api"),
		Store:    store,
	}, logger.Named("http"))

	errc := make(chan error, 1)
	go func() { errc <- server.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := Config{Http: qhttp.DefaultServerConfig()}
	config.Envelope.Limits = envelope.DefaultLimits()
	config.Monitoring.Heartbeat = 30 * time.Second
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	config.Envelope.Limits = config.Envelope.Limits.WithDefaults()
	return &config, nil
}
