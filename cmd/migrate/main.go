// Command migrate applies or rolls back the dns_requests schema using
// golang-migrate, with migration SQL embedded into the binary so the
// admin CLI ships as a single artifact.
package main

import (
	"errors"
	"flag"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/fntelecomllc/dnsguard/internal/config"
	"github.com/fntelecomllc/dnsguard/internal/migrations"
)

func main() {
	var (
		dsn       string
		direction string
		steps     int
	)

	flag.StringVar(&dsn, "dsn", "", "PostgreSQL connection string; defaults to DB_* env vars")
	flag.StringVar(&direction, "direction", "up", "migration direction: up or down")
	flag.IntVar(&steps, "steps", 0, "number of steps to apply (0 = all)")
	flag.Parse()

	if dsn == "" {
		var err error
		dsn, err = config.DatabaseDSNFromEnv()
		if err != nil {
			log.Fatalf("dsn not provided and could not be derived from environment: %v", err)
		}
	}

	source, err := iofs.New(migrations.FS, "sql")
	if err != nil {
		log.Fatalf("load embedded migrations: %v", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		log.Fatalf("init migrate: %v", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			log.Printf("close migration source: %v", srcErr)
		}
		if dbErr != nil {
			log.Printf("close migration db: %v", dbErr)
		}
	}()

	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		log.Fatalf("unknown direction %q, want up or down", direction)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("no migration change to apply")
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("migration applied successfully")
}
