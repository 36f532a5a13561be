package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"

	"github.com/kevin07696/squareup-service/internal/adapters/postgres"
	"github.com/kevin07696/squareup-service/internal/config"
)

var (
	flags = flag.NewFlagSet("migrate", flag.ExitOnError)
	dbURL = flags.String("database", "", "database URL (defaults to DATABASE_URL or DB_* variables)")
)

func main() {
	flags.Usage = usage
	_ = flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) < 1 {
		flags.Usage()
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	url := *dbURL
	if url == "" {
		dbCfg := config.LoadDatabaseFromEnv()
		url = dbCfg.ConnectionString()
	}

	m, err := postgres.NewMigrator(url)
	if err != nil {
		log.Fatalf("failed to open migrator: %v", err)
	}
	defer m.Close()

	if err := runCommand(m, args[0], args[1:]); err != nil {
		log.Fatalf("migrate %s: %v", args[0], err)
	}
}

func runCommand(m *migrate.Migrate, command string, args []string) error {
	var err error
	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "reset":
		err = m.Down()
	case "goto":
		if len(args) != 1 {
			return errors.New("goto requires a VERSION")
		}
		version, parseErr := strconv.ParseUint(args[0], 10, 64)
		if parseErr != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], parseErr)
		}
		err = m.Migrate(uint(version))
	case "force":
		if len(args) != 1 {
			return errors.New("force requires a VERSION")
		}
		version, parseErr := strconv.Atoi(args[0])
		if parseErr != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], parseErr)
		}
		err = m.Force(version)
	case "status", "version":
		return printVersion(m)
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("no change")
		return nil
	}
	if err != nil {
		return err
	}
	return printVersion(m)
}

func printVersion(m *migrate.Migrate) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("no migrations applied")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("version %d (dirty: %t)\n", version, dirty)
	return nil
}

func usage() {
	fmt.Print(`Usage: migrate [-database URL] COMMAND

Commands:
    up              Migrate the DB to the most recent version available
    down            Roll back the version by 1
    reset           Roll back all migrations
    goto VERSION    Migrate up or down to a specific VERSION
    force VERSION   Set the version without running migrations (clears the dirty flag)
    status          Print the current version of the database

Examples:
    migrate up
    migrate down
    migrate status
`)
}
