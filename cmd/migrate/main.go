package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/StefanMaier/MarketFox/internal/pkg/env"
)

// Schema migration runner. Kept separate from the service binary so deploys
// can run migrations before rolling the app.
func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	m, err := migrate.New("file://migrations", databaseURL())
	if err != nil {
		log.Fatalf("migrate init: %v", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Printf("migrate close: source=%v db=%v", srcErr, dbErr)
		}
	}()

	switch os.Args[1] {
	case "up":
		run(m.Up, "all pending migrations applied")
	case "down":
		if err := m.Steps(-1); err != nil {
			log.Fatalf("rollback: %v", err)
		}
		log.Println("rolled back one migration")
	case "goto":
		if len(os.Args) < 3 {
			log.Fatal("goto needs a target version")
		}
		version, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			log.Fatalf("invalid version %q: %v", os.Args[2], err)
		}
		run(func() error { return m.Migrate(uint(version)) }, fmt.Sprintf("migrated to version %d", version))
	case "force":
		if len(os.Args) < 3 {
			log.Fatal("force needs a version")
		}
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("invalid version %q: %v", os.Args[2], err)
		}
		if err := m.Force(version); err != nil {
			log.Fatalf("force version %d: %v", version, err)
		}
		log.Printf("forced schema version to %d", version)
	case "status":
		version, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			log.Println("no migrations applied yet")
		case err != nil:
			log.Fatalf("read version: %v", err)
		case dirty:
			log.Printf("schema version %d (dirty)", version)
		default:
			log.Printf("schema version %d", version)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func run(step func() error, okMsg string) {
	err := step()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Println("schema already up to date")
	case err != nil:
		log.Fatalf("migration failed: %v", err)
	default:
		log.Println(okMsg)
	}
}

func databaseURL() string {
	user := env.GetEnv("DB_USER", "marketfox")
	host := env.GetEnv("DB_HOST", "db")
	port := env.GetEnv("DB_PORT", "3306")
	name := env.GetEnv("DB_NAME", "marketfox_db")
	log.Printf("connecting to %s@%s:%s/%s", user, host, port, name)
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		user, env.GetEnv("DB_PASSWORD", "marketfox"), host, port, name)
}

func usage() {
	fmt.Println("usage: migrate <command>")
	fmt.Println("  up       apply all pending migrations")
	fmt.Println("  down     roll back the last migration")
	fmt.Println("  goto N   migrate to version N")
	fmt.Println("  force N  mark the schema as version N without running anything")
	fmt.Println("  status   print the current schema version")
}
