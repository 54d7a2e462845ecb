package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/vire-engine/internal/common"
	"github.com/bobmcallan/vire-engine/internal/engine"
	"github.com/bobmcallan/vire-engine/internal/engine/mirror"
	"github.com/bobmcallan/vire-engine/internal/interfaces"
	"github.com/bobmcallan/vire-engine/internal/monitoring"
)

// App holds the engine, its optional durable mirror, and configuration. It
// is the shared core used by cmd/vire-server.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Engine      *engine.Engine
	Dashboard   *monitoring.Dashboard
	StartupTime time.Time

	mirrorStore interfaces.MirrorStore
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp loads configuration, starts the storage engine and (if enabled)
// its durable mirror. configPath may be empty, in which case the default
// resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("VIRE_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "vire-engine.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/vire-engine.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}
	if config.Engine.MirrorPath != "" && !filepath.IsAbs(config.Engine.MirrorPath) {
		config.Engine.MirrorPath = filepath.Join(binDir, config.Engine.MirrorPath)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	eng := engine.New(engine.Options{
		StringComparer:        config.Engine.StringComparer,
		MaxExpirationTime:     config.Engine.GetMaxExpirationTime(),
		MaxStateHistoryLength: config.Engine.MaxStateHistoryLength,
		CommandTimeout:        config.Engine.GetCommandTimeout(),
		InboxCapacity:         config.Engine.InboxCapacity,
		EvictionInterval:      config.Engine.GetEvictionInterval(),
	}, logger)

	var mirrorStore interfaces.MirrorStore
	if config.Engine.MirrorEnabled {
		store, err := mirror.NewStore(logger, config.Engine.MirrorPath)
		if err != nil {
			eng.Stop()
			return nil, fmt.Errorf("failed to open engine mirror: %w", err)
		}
		mirrorStore = store
	}

	a := &App{
		Config:      config,
		Logger:      logger,
		Engine:      eng,
		Dashboard:   monitoring.New(eng.NewConnection("monitoring")),
		StartupTime: startupStart,
		mirrorStore: mirrorStore,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// NewConnection returns a fresh engine connection identified by id. When
// the durable mirror is enabled, writes through the returned connection
// are also best-effort persisted; with mirroring disabled this is a plain
// passthrough to *engine.Connection.
func (a *App) NewConnection(id string) *mirror.Connection {
	return mirror.NewConnection(a.Engine.NewConnection(id), a.mirrorStore, a.Logger)
}

// Close stops the engine's writer goroutine and closes the mirror store.
func (a *App) Close() {
	if a.Engine != nil {
		a.Engine.Stop()
	}
	if a.mirrorStore != nil {
		if err := a.mirrorStore.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close engine mirror")
		}
		a.mirrorStore = nil
	}
}
