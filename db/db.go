package db

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
)

func InitDatabase() (*pgxpool.Pool, error) {

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	host := os.Getenv("DATABASE_HOST")
	port := os.Getenv("DATABASE_PORT")
	user := os.Getenv("DATABASE_USER")
	password := os.Getenv("DATABASE_PASSWORD")
	database_name := os.Getenv("DATABASE_NAME")

	config, err := pgxpool.ParseConfig(" host=" + host + " port=" + port + " user=" + user + " password=" + password + " database=" + database_name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}

	conn, err := pgxpool.ConnectConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	// Create tables
	sqlQueries := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

		`CREATE TABLE IF NOT EXISTS chains (
			chain_id uuid PRIMARY KEY,
			title VARCHAR(100) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			creator_id uuid NOT NULL,
			max_participants INTEGER NOT NULL CHECK (max_participants >= 2),
			turn_duration_days INTEGER NOT NULL CHECK (turn_duration_days >= 1),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS chain_participants (
			participant_id uuid PRIMARY KEY,
			chain_id uuid NOT NULL REFERENCES chains(chain_id),
			user_id uuid NOT NULL,
			turn_position INTEGER NOT NULL CHECK (turn_position >= 0),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			last_turn_at TIMESTAMP,
			joined_at TIMESTAMP NOT NULL
		)`,

		// Racing joins that compute the same position or double-add a user
		// fail on these and get retried.
		`CREATE UNIQUE INDEX IF NOT EXISTS chain_participants_active_position
			ON chain_participants (chain_id, turn_position) WHERE is_active`,

		`CREATE UNIQUE INDEX IF NOT EXISTS chain_participants_active_user
			ON chain_participants (chain_id, user_id) WHERE is_active`,

		`CREATE TABLE IF NOT EXISTS prayer_events (
			event_id uuid PRIMARY KEY,
			chain_id uuid NOT NULL REFERENCES chains(chain_id),
			user_id uuid NOT NULL,
			content TEXT NOT NULL,
			prayed_at TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS prayer_events_chain_prayed_at
			ON prayer_events (chain_id, prayed_at DESC)`,
	}

	for _, query := range sqlQueries {
		_, err = conn.Exec(context.Background(), query)
		if err != nil {
			return nil, fmt.Errorf("failed to create table: %v", err)
		}
	}

	return conn, nil
}
