package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/perfstor/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RunRepository is the repository over Run records.
type RunRepository = Repository[Run, uint]

// Store provides persistence for runs and ingest bookkeeping.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Runs returns the Run repository. Only valid after Start.
	Runs() RunRepository

	// Ingest bookkeeping.
	ListIngestedKeys(ctx context.Context, source string) ([]string, error)
	ImportRuns(ctx context.Context, f *IngestedFile, runs []Run) error
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log  logrus.FieldLogger
	cfg  *config.DatabaseConfig
	db   *gorm.DB
	runs *gormRepository[Run, uint]
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dialector = postgres.Open(s.cfg.Postgres.DSN())
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	s.db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Run{},
		&IngestedFile{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.runs = newGormRepository[Run, uint](s.db, "run")

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

func (s *store) Runs() RunRepository {
	return s.runs
}

// ListIngestedKeys returns the object keys already imported from source.
func (s *store) ListIngestedKeys(
	ctx context.Context, source string,
) ([]string, error) {
	var keys []string
	if err := s.db.WithContext(ctx).
		Model(&IngestedFile{}).
		Where("source = ?", source).
		Pluck("object_key", &keys).Error; err != nil {
		return nil, fmt.Errorf("listing ingested keys: %w", err)
	}

	return keys, nil
}

// ImportRuns inserts runs as new records and records f as ingested in one
// transaction, so a failure leaves neither the runs nor the record behind.
// Ids carried by runs are discarded. Importing an already recorded key
// keeps the first record.
func (s *store) ImportRuns(
	ctx context.Context, f *IngestedFile, runs []Run,
) error {
	if f.IngestedAt.IsZero() {
		f.IngestedAt = time.Now().UTC()
	}

	f.Runs = len(runs)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range runs {
			runs[i].ID = 0

			if err := tx.Create(&runs[i]).Error; err != nil {
				return fmt.Errorf("saving run %d: %w", i, err)
			}
		}

		return tx.
			Where("source = ? AND object_key = ?", f.Source, f.ObjectKey).
			FirstOrCreate(f).Error
	})
	if err != nil {
		return fmt.Errorf("importing %s: %w", f.ObjectKey, err)
	}

	return nil
}
