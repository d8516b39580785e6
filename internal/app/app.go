// Package app wires configuration, storage, clients, and services together
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ldsbg/fundkeeper/internal/clients/eastmoney"
	"github.com/ldsbg/fundkeeper/internal/common"
	"github.com/ldsbg/fundkeeper/internal/interfaces"
	"github.com/ldsbg/fundkeeper/internal/services/market"
	"github.com/ldsbg/fundkeeper/internal/services/portfolio"
	"github.com/ldsbg/fundkeeper/internal/storage"
)

// App holds all initialized services, clients, and storage.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Storage     interfaces.StorageManager
	Client      interfaces.FundDataClient
	Market      interfaces.MarketService
	Portfolio   interfaces.PortfolioService
	StartupTime time.Time

	schedulerCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes storage, clients, and services.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	// Load configuration - check provided path, FUNDKEEPER_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("FUNDKEEPER_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "fundkeeper.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/fundkeeper.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative paths to the binary directory
	if config.Storage.Path != "" && !filepath.IsAbs(config.Storage.Path) {
		config.Storage.Path = filepath.Join(binDir, config.Storage.Path)
	}
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	storageManager, err := storage.NewStorageManager(logger, &config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	client := eastmoney.NewClient(
		eastmoney.WithBaseURL(config.Clients.Eastmoney.BaseURL),
		eastmoney.WithHistoryBaseURL(config.Clients.Eastmoney.HistoryBaseURL),
		eastmoney.WithLogger(logger),
		eastmoney.WithRateLimit(config.Clients.Eastmoney.RateLimit),
		eastmoney.WithTimeout(config.Clients.Eastmoney.GetTimeout()),
	)

	marketService := market.NewService(client, storageManager, logger)
	portfolioService := portfolio.NewService(storageManager, marketService, logger)

	logger.Info().
		Str("data_path", config.Storage.Path).
		Int("users", len(config.Users)).
		Msg("Application initialized")

	return &App{
		Config:      config,
		Logger:      logger,
		Storage:     storageManager,
		Client:      client,
		Market:      marketService,
		Portfolio:   portfolioService,
		StartupTime: time.Now(),
	}, nil
}

// StartSnapshotScheduler launches the background snapshot refresh when
// enabled in configuration.
func (a *App) StartSnapshotScheduler() {
	if !a.Config.Scheduler.Enabled || len(a.Config.Users) == 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.schedulerCancel = cancel

	interval := a.Config.Scheduler.GetInterval()
	a.Logger.Info().
		Dur("interval", interval).
		Int("users", len(a.Config.Users)).
		Msg("Snapshot scheduler started")

	go startSnapshotScheduler(ctx, a.Portfolio, a.Config.Users, interval, a.Logger)
}

// Close releases application resources.
func (a *App) Close() error {
	if a.schedulerCancel != nil {
		a.schedulerCancel()
	}
	if a.Storage != nil {
		return a.Storage.Close()
	}
	return nil
}
