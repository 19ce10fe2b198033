package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/traintracker-data/internal/common/logger"
)

type DB struct {
	conn   *sql.DB
	logger logger.Logger
}

// New opens a Postgres pool and verifies it with a ping.
func New(ctx context.Context, connStr string, logger logger.Logger) (*DB, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("Database connection established")

	return Wrap(conn, logger), nil
}

// Wrap adopts an already opened pool.
func Wrap(conn *sql.DB, logger logger.Logger) *DB {
	return &DB{conn: conn, logger: logger}
}

func (db *DB) Close() error {
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	db.logger.Info("Database connection closed")
	return nil
}

// DB returns the underlying pool.
func (db *DB) DB() *sql.DB {
	return db.conn
}
