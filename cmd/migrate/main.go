package main

import (
	"context"
	"fmt"
	"log"

	"github.com/datachat-ai/datachat/internal/config"
	"github.com/datachat-ai/datachat/internal/database"
)

func main() {
	cfg, err := config.NewDefaultLoader().Load(context.Background())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	db := cfg.Database

	fmt.Println("=== Running Database Migrations ===")
	fmt.Printf("Connecting to database: %s@%s:%d/%s\n", db.User, db.Host, db.Port, db.Database)

	if err := database.VerifyDatabase(db.Host, db.Port, db.User, db.Password, db.Database); err != nil {
		log.Fatalf("Database connectivity failed: %v", err)
	}
	fmt.Println("✓ Database connectivity verified")

	migrationConfig := database.MigrationConfig{
		DatabaseURL: fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			db.User, db.Password, db.Host, db.Port, db.Database, db.SSLMode),
		MigrationsPath: "./migrations",
	}

	if err := database.RunMigrations(migrationConfig); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	fmt.Println("✓ Database migrations completed successfully!")
}
