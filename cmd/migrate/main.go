package main

import (
	"fmt"
	"os"

	"github.com/Rrens/kaif-chat/internal/config"
	"github.com/Rrens/kaif-chat/internal/repository/postgres"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if cfg.Database.Driver != "postgres" {
		fmt.Printf("Database driver %q applies its schema on open, nothing to migrate\n", cfg.Database.Driver)
		return
	}

	fmt.Printf("Migrating database at %s:%d from %s...\n", cfg.Database.Host, cfg.Database.Port, cfg.Database.Migrations)

	if err := postgres.RunMigrations(cfg.Database.DSN(), cfg.Database.Migrations); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Migrations applied")
}
