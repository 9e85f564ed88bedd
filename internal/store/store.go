package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/spigell/cv-matcher/internal/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"

	defaultDSN = "recruitment.db"
)

// Config selects the database.
type Config struct {
	Driver string
	DSN    string
	Debug  bool
}

// Store is the relational persistence of jobs, candidates, shortlist rows and run reports.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to the configured database. Migrations are applied separately by Migrate.
func Open(cfg Config, log *zap.Logger) (*Store, error) {
	log = logger.OrNop(log)

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	dsn := strings.TrimSpace(cfg.DSN)

	var dialector gorm.Dialector
	switch driver {
	case "", DriverSQLite:
		driver = DriverSQLite
		if dsn == "" {
			dsn = defaultDSN
		}
		dialector = sqlite.Open(withSQLitePragmas(dsn))
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required for %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newZapLogger(log, cfg.Debug),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sqlite handle: %w", err)
		}
		// A single connection serialises writers.
		sqlDB.SetMaxOpenConns(1)
	}

	log.Debug("database opened", zap.String("driver", driver))

	return &Store{db: db, logger: log}, nil
}

func withSQLitePragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Migrate applies every pending versioned migration.
func (s *Store) Migrate(ctx context.Context) error {
	if err := newMigrator(s.db.WithContext(ctx)).Migrate(); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	s.logger.Info("schema is up to date", zap.Int("migrations", len(migrations())))
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
