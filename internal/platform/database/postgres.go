package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"guideboard/internal/platform/config"
	"guideboard/internal/platform/database/migrations"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/pressly/goose/v3"
)

var DB *sql.DB

// Connect opens the shared pool described by config.AppConfig and verifies it.
func Connect(ctx context.Context) error {
	db, err := sql.Open("pgx", config.AppConfig.DBConnStr)
	if err != nil {
		return fmt.Errorf("database.Connect open: %w", err)
	}

	db.SetMaxOpenConns(config.AppConfig.DBMaxConns)
	db.SetMaxIdleConns(config.AppConfig.DBMaxConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("database.Connect ping: %w", err)
	}

	DB = db
	return nil
}

func Close() {
	if DB != nil {
		DB.Close()
	}
}

// gooseUp is swapped out in tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("database.Migrate dialect: %w", err)
	}
	if err := gooseUp(ctx, db, "."); err != nil {
		return fmt.Errorf("database.Migrate: %w", err)
	}
	return nil
}
