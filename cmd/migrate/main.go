package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	appconfig "github.com/wolfman30/realestate-marketplace/internal/config"
	appmigrations "github.com/wolfman30/realestate-marketplace/migrations"
	"github.com/wolfman30/realestate-marketplace/pkg/logging"
)

const usage = "usage: migrate [up | down <steps> | version | force <version>]"

// migrator is the subset of *migrate.Migrate the commands drive.
type migrator interface {
	Up() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	m, closeFn, err := openMigrator(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open migrator", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	if err := run(m, os.Args[1:], logger); err != nil {
		logger.Error("migration failed", "error", err)
		closeFn()
		os.Exit(1)
	}
}

func openMigrator(databaseURL string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping db: %w", err)
	}
	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("db driver: %w", err)
	}
	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, func() { _, _ = m.Close() }, nil
}

// run executes one subcommand. No arguments means "up".
func run(m migrator, args []string, logger *logging.Logger) error {
	cmd := "up"
	if len(args) > 0 {
		cmd = strings.ToLower(strings.TrimSpace(args[0]))
	}

	switch cmd {
	case "up":
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("schema already current")
				return nil
			}
			return fmt.Errorf("up: %w", err)
		}
		logger.Info("migrations applied")
	case "down":
		steps, err := intArg(args, 1)
		if err != nil {
			return err
		}
		if steps <= 0 {
			return fmt.Errorf("down: steps must be positive")
		}
		if err := m.Steps(-steps); err != nil {
			return fmt.Errorf("down %d: %w", steps, err)
		}
		logger.Info("migrations rolled back", "steps", steps)
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied")
			return nil
		}
		if err != nil {
			return fmt.Errorf("version: %w", err)
		}
		logger.Info("schema version", "version", version, "dirty", dirty)
	case "force":
		version, err := intArg(args, 1)
		if err != nil {
			return err
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force %d: %w", version, err)
		}
		logger.Info("schema version forced", "version", version)
	default:
		return errors.New(usage)
	}
	return nil
}

func intArg(args []string, idx int) (int, error) {
	if len(args) <= idx {
		return 0, errors.New(usage)
	}
	n, err := strconv.Atoi(strings.TrimSpace(args[idx]))
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", args[idx], err)
	}
	return n, nil
}
