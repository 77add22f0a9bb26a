package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/bakery/backoffice/internal/infrastructure/config"
	"github.com/bakery/backoffice/internal/infrastructure/logger"
	"github.com/bakery/backoffice/internal/infrastructure/migration"
	"github.com/bakery/backoffice/internal/infrastructure/persistence"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const defaultMigrationsPath = "migrations"

func main() {
	var (
		migrationsPath string
		logLevel       string
	)

	flag.StringVar(&migrationsPath, "path", "", "Path to migrations directory (default: schema embedded in the binary)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	if migrationsPath != "" {
		absPath, err := filepath.Abs(migrationsPath)
		if err != nil {
			log.Fatal("Failed to get absolute path", zap.Error(err))
		}
		migrationsPath = absPath
	}

	log.Info("Migration CLI started",
		zap.String("command", command),
		zap.String("migrations_path", sourceName(migrationsPath)),
	)

	// create and list don't need a database
	switch command {
	case "create":
		if len(args) < 2 {
			log.Fatal("Migration name required. Usage: migrate create <name> [description]")
		}
		dir := migrationsPath
		if dir == "" {
			dir = defaultMigrationsPath
		}
		description := ""
		if len(args) > 2 {
			description = args[2]
		}

		mf, err := migration.CreateMigration(dir, args[1], description)
		if err != nil {
			log.Fatal("Failed to create migration", zap.Error(err))
		}
		log.Info("Migration created successfully",
			zap.Uint("version", mf.Version),
			zap.String("up_file", mf.UpPath),
			zap.String("down_file", mf.DownPath),
		)
		return

	case "list":
		entries, err := migration.ListMigrations(migration.SourceFS(migrationsPath))
		if err != nil {
			log.Fatal("Failed to list migrations", zap.Error(err))
		}
		if len(entries) == 0 {
			log.Info("No migrations found")
			return
		}

		log.Info("Available migrations", zap.Int("count", len(entries)))
		for _, e := range entries {
			down := ""
			if !e.HasDown {
				down = " (no down)"
			}
			fmt.Printf("  - %06d %s%s\n", e.Version, e.Name, down)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	if command == "seed-supplier" {
		seedSupplier(cfg, args[1:], log)
		return
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		log.Fatal("Failed to ping database", zap.Error(err))
	}

	// the migrator owns db from here on
	m, err := migration.New(db, migrationsPath, log)
	if err != nil {
		_ = db.Close()
		log.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Error closing migrator", zap.Error(err))
		}
	}()

	switch command {
	case "up":
		if err := m.Up(); err != nil {
			log.Fatal("Migration up failed", zap.Error(err))
		}

	case "down":
		if err := m.Down(); err != nil {
			log.Fatal("Migration down failed", zap.Error(err))
		}

	case "step":
		if len(args) < 2 {
			log.Fatal("Step count required. Usage: migrate step <n>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatal("Invalid step count", zap.String("value", args[1]))
		}
		if err := m.Steps(n); err != nil {
			log.Fatal("Migration step failed", zap.Error(err))
		}

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatal("Failed to get version", zap.Error(err))
		}
		if version == 0 {
			log.Info("No migrations applied")
		} else {
			log.Info("Current migration version",
				zap.Uint("version", version),
				zap.Bool("dirty", dirty),
			)
		}

	case "force":
		if len(args) < 2 {
			log.Fatal("Version required. Usage: migrate force <version>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatal("Invalid version number", zap.String("value", args[1]))
		}
		log.Warn("Forcing migration version - use with caution!")
		if err := m.Force(version); err != nil {
			log.Fatal("Force version failed", zap.Error(err))
		}

	default:
		log.Error("Unknown command", zap.String("command", command))
		printUsage()
		os.Exit(1)
	}
}

// seedSupplier registers or updates one supplier so orders can reference it.
// Usage: seed-supplier <code> <name> [id] [-inactive]
func seedSupplier(cfg *config.Config, args []string, log *zap.Logger) {
	if len(args) < 2 {
		log.Fatal("Code and name required. Usage: migrate seed-supplier <code> <name> [id] [-inactive]")
	}

	supplier := purchasing.Supplier{Code: args[0], Name: args[1], Active: true}
	for _, arg := range args[2:] {
		if arg == "-inactive" || arg == "--inactive" {
			supplier.Active = false
			continue
		}
		id, err := uuid.Parse(arg)
		if err != nil {
			log.Fatal("Invalid supplier ID", zap.String("value", arg))
		}
		supplier.ID = id
	}
	if supplier.ID == uuid.Nil {
		// stable per code, so re-running updates instead of duplicating
		supplier.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("bakery-supplier:"+supplier.Code))
	}

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		_ = db.Close()
	}()

	if err := persistence.NewGormSupplierDirectory(db.DB).Upsert(context.Background(), supplier); err != nil {
		log.Fatal("Failed to seed supplier", zap.Error(err))
	}
	log.Info("Supplier seeded",
		zap.String("id", supplier.ID.String()),
		zap.String("code", supplier.Code),
		zap.Bool("active", supplier.Active),
	)
}

func sourceName(dir string) string {
	if dir == "" {
		return "embedded"
	}
	return dir
}

func printUsage() {
	fmt.Println(`Bakery Back Office Migration Tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                            Apply all pending migrations
  down                          Roll back all migrations
  step <n>                      Apply n migrations (positive=up, negative=down)
  version                       Show current migration version
  force <version>               Force set migration version (use with caution)
  create <name> [desc]          Create a new migration file pair
  list                          List available migrations
  seed-supplier <code> <name> [id] [-inactive]
                                Register or update a supplier

Flags:
  -path string          Path to migrations directory (default: schema embedded in the binary)
  -log-level string     Log level: debug, info, warn, error (default: info)

Environment Variables:
  BAKERY_DATABASE_HOST, BAKERY_DATABASE_PORT, BAKERY_DATABASE_USER,
  BAKERY_DATABASE_PASSWORD, BAKERY_DATABASE_DBNAME, BAKERY_DATABASE_SSLMODE

Examples:
  # Apply all pending migrations
  migrate up

  # Roll back the last migration
  migrate step -1

  # Create a new migration
  migrate create add_lot_numbers "Track lot numbers on stock movements"

  # Register a supplier
  migrate seed-supplier DAIRY-01 "Valley Dairy Co-op"`)
}
