package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/plotwise/plotwise-backend/internal/domain"
	"github.com/plotwise/plotwise-backend/internal/platform/envutil"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
)

// Service wraps the relational store holding full parcel detail. Postgres in
// deployments, sqlite for local mode and tests; the switch is DB_DRIVER.
type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewService(log *logger.Logger) (*Service, error) {
	serviceLog := log.With("service", "DBService")

	driver := strings.ToLower(envutil.String("DB_DRIVER", "postgres"))
	var (
		conn *gorm.DB
		err  error
	)
	switch driver {
	case "postgres":
		conn, err = openPostgres()
	case "sqlite":
		conn, err = openSQLite()
	default:
		return nil, fmt.Errorf("db: unsupported DB_DRIVER %q (postgres|sqlite)", driver)
	}
	if err != nil {
		serviceLog.Error("Failed to connect to database", "driver", driver, "error", err)
		return nil, err
	}
	serviceLog.Info("Database connected", "driver", driver)

	return &Service{db: conn, log: serviceLog}, nil
}

func openPostgres() (*gorm.DB, error) {
	host := envutil.String("POSTGRES_HOST", "localhost")
	port := envutil.String("POSTGRES_PORT", "5432")
	user := envutil.String("POSTGRES_USER", "postgres")
	password := envutil.String("POSTGRES_PASSWORD", "")
	name := envutil.String("POSTGRES_NAME", "plotwise")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect postgres: %w", err)
	}
	return conn, nil
}

func openSQLite() (*gorm.DB, error) {
	path := envutil.String("SQLITE_PATH", "file::memory:?cache=shared")
	conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("db: connect sqlite: %w", err)
	}
	return conn, nil
}

// AutoMigrateAll creates the parcel-detail tables. The ETL collaborator owns
// the data; we only own the schema our reads depend on.
func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	if err := s.db.AutoMigrate(
		&domain.Parcel{},
		&domain.ZoningZone{},
	); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}

func (s *Service) DB() *gorm.DB {
	return s.db
}
