package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"

	_ "github.com/lib/pq"
)

// Connect opens the postgres connection pool and verifies it.
func Connect(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Set connection pool parameters
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	logger.Log.Info("Database connection established")
	return db, nil
}

// Store gives SQL-backed access to every persisted entity. Engines depend on
// narrow interfaces that *Store satisfies, so tests substitute fakes.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}
