// migrate-to-postgres copies simulation run history from SQLite to PostgreSQL.
//
// Usage:
//
//	go run ./cmd/migrate-to-postgres \
//	    -sqlite data/combatsim.db \
//	    -pg-host localhost \
//	    -pg-port 5432 \
//	    -pg-user combatsim \
//	    -pg-password combatsim \
//	    -pg-database combatsim
//
// Runs are matched by run key, so the tool can be rerun safely; runs already
// present in PostgreSQL are skipped.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/lawnchairsociety/combatsim/internal/database"
)

func main() {
	defaults := database.DefaultPostgresConfig()
	sqlitePath := flag.String("sqlite", "data/combatsim.db", "Path to SQLite history database")
	pgHost := flag.String("pg-host", defaults.Host, "PostgreSQL host")
	pgPort := flag.Int("pg-port", defaults.Port, "PostgreSQL port")
	pgUser := flag.String("pg-user", defaults.User, "PostgreSQL user")
	pgPassword := flag.String("pg-password", defaults.Password, "PostgreSQL password")
	pgDatabase := flag.String("pg-database", defaults.Database, "PostgreSQL database name")
	pgSSLMode := flag.String("pg-sslmode", defaults.SSLMode, "PostgreSQL SSL mode")
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	flag.Parse()

	log.Println("SQLite to PostgreSQL History Migration")
	log.Println("======================================")

	if _, err := os.Stat(*sqlitePath); err != nil {
		log.Fatalf("SQLite database not found: %v", err)
	}

	log.Printf("Opening SQLite database: %s", *sqlitePath)
	source, err := database.Open(*sqlitePath)
	if err != nil {
		log.Fatalf("Failed to open SQLite database: %v", err)
	}
	defer source.Close()

	pgCfg := defaults
	pgCfg.Host = *pgHost
	pgCfg.Port = *pgPort
	pgCfg.User = *pgUser
	pgCfg.Password = *pgPassword
	pgCfg.Database = *pgDatabase
	pgCfg.SSLMode = *pgSSLMode

	// Opening runs the schema migrations, so it is skipped in dry-run mode
	var target *database.Database
	if *dryRun {
		log.Println("DRY RUN MODE - No changes will be made")
	} else {
		log.Printf("Opening PostgreSQL database: %s@%s:%d/%s", pgCfg.User, pgCfg.Host, pgCfg.Port, pgCfg.Database)
		target, err = database.OpenWithConfig(database.Config{
			Driver:   string(database.DialectPostgres),
			Postgres: pgCfg,
		})
		if err != nil {
			log.Fatalf("Failed to open PostgreSQL database: %v", err)
		}
		defer target.Close()
	}

	stats, err := migrateRuns(source, target)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("======================================")
	log.Printf("Migration complete! Runs: %d migrated, %d skipped. Results: %d", stats.runs, stats.skipped, stats.results)
	if *dryRun {
		log.Println("(DRY RUN - No actual changes were made)")
	}
}

type migrateStats struct {
	runs    int
	skipped int
	results int
}

// migrateRuns copies every run in source to target, oldest first. A nil
// target counts what would be copied.
func migrateRuns(source, target *database.Database) (migrateStats, error) {
	var stats migrateStats

	keys, err := runKeys(source)
	if err != nil {
		return stats, err
	}
	log.Printf("Found %d runs", len(keys))

	for _, key := range keys {
		run, err := source.GetRun(key)
		if err != nil {
			return stats, err
		}
		results, err := source.GetRunResults(run.ID)
		if err != nil {
			return stats, err
		}

		if target == nil {
			stats.runs++
			stats.results += len(results)
			continue
		}

		// Target assigns its own ids
		run.ID = 0
		for i := range results {
			results[i].RunID = 0
		}
		if err := target.SaveRun(run, results); err != nil {
			if errors.Is(err, database.ErrRunExists) {
				stats.skipped++
				continue
			}
			return stats, fmt.Errorf("run %s: %w", key, err)
		}
		stats.runs++
		stats.results += len(results)
	}
	return stats, nil
}

func runKeys(db *database.Database) ([]string, error) {
	rows, err := db.DB().Query(`SELECT run_key FROM simulation_runs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Copies simulation run history from SQLite to PostgreSQL.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s -sqlite data/combatsim.db -pg-host localhost -pg-user combatsim -pg-password combatsim -pg-database combatsim\n", os.Args[0])
	}
}
