package bootstrap

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/quicknotes/studybot/core/config"
	coredatabase "github.com/quicknotes/studybot/core/database"
	"github.com/quicknotes/studybot/core/logger"
	"github.com/quicknotes/studybot/internal/storage"
)

// Options control the bootstrap pipeline: logger, optional database,
// and the document store with its background syncer.
type Options struct {
	Config *coreconfig.Config

	// SyncInterval overrides the document syncer cycle; zero keeps the default.
	SyncInterval time.Duration

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
// DB is nil unless the postgres storage backend is selected.
type Result struct {
	DB    *sqlx.DB
	Store *storage.Syncer
}

// Run initializes the logger, connects the database when the postgres
// backend needs it, applies migrations, and builds the document syncer.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	var db *sqlx.DB
	if cfg.Storage.Backend == coreconfig.StoragePostgres {
		dbCfg := databaseConfig(cfg.Storage.Postgres)

		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		var err error
		db, err = connect(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}

		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(dbCfg); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
	}

	primary, err := storage.New(cfg.Storage, db)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, fmt.Errorf("bootstrap: storage initialization failed: %w", err)
	}

	// The local backend is its own durable copy; remote backends get a
	// local fallback so failed saves survive a restart.
	var fallback *storage.LocalStore
	if cfg.Storage.Backend != coreconfig.StorageLocal {
		fallback = storage.NewLocalStore(cfg.Storage.LocalDir)
	}

	return &Result{
		DB:    db,
		Store: storage.NewSyncer(primary, fallback, opts.SyncInterval),
	}, nil
}

func databaseConfig(p coreconfig.PostgresConfig) coredatabase.Config {
	return coredatabase.Config{
		Host:           p.Host,
		Port:           p.Port,
		User:           p.User,
		Password:       p.Password,
		Name:           p.Name,
		SSLMode:        p.SSLMode,
		MaxConnections: p.MaxConnections,
	}
}
