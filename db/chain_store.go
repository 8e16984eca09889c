package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prayerchain_back_end_go/chains"
	"prayerchain_back_end_go/models"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ChainStore is the Postgres implementation of chains.Store. Mutations on one
// chain serialize on a SELECT ... FOR UPDATE of the chain row; lost races
// against the partial unique indexes surface as chains.ErrConflict so the
// engine can retry.
type ChainStore struct {
	pool *pgxpool.Pool
}

func NewChainStore(pool *pgxpool.Pool) *ChainStore {
	return &ChainStore{pool: pool}
}

func (s *ChainStore) Begin(ctx context.Context, fn func(chains.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&chainTx{ctx: ctx, tx: tx})
	})
}

func (s *ChainStore) WithinChain(ctx context.Context, chainID string, fn func(chains.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx,
			"SELECT chain_id FROM chains WHERE chain_id = $1 FOR UPDATE", chainID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return chains.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("locking chain %s: %w", chainID, err)
		}
		return fn(&chainTx{ctx: ctx, tx: tx})
	})
}

func (s *ChainStore) View(ctx context.Context, fn func(chains.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		return fn(&chainTx{ctx: ctx, tx: tx})
	})
}

func (s *ChainStore) run(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback(ctx)
		return mapConflict(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapConflict(err)
	}
	return nil
}

// mapConflict translates serialization failures, deadlocks and unique-index
// violations into the retryable conflict error.
func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %v", chains.ErrConflict, err)
		}
	}
	return err
}

type chainTx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *chainTx) GetChain(chainID string) (models.Chain, error) {
	var c models.Chain
	err := t.tx.QueryRow(t.ctx, `
		SELECT chain_id, title, description, creator_id, max_participants,
		       turn_duration_days, is_active, created_at, updated_at
		FROM chains
		WHERE chain_id = $1`, chainID).
		Scan(&c.ID, &c.Title, &c.Description, &c.CreatorID, &c.MaxParticipants,
			&c.TurnDurationDays, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Chain{}, chains.ErrNotFound
	}
	if err != nil {
		return models.Chain{}, fmt.Errorf("querying chain %s: %w", chainID, err)
	}
	return c, nil
}

func (t *chainTx) InsertChain(c models.Chain) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO chains (chain_id, title, description, creator_id, max_participants,
		                    turn_duration_days, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Title, c.Description, c.CreatorID, c.MaxParticipants,
		c.TurnDurationDays, c.IsActive, c.CreatedAt, c.UpdatedAt)
	return err
}

func (t *chainTx) SetChainActive(chainID string, active bool, updatedAt time.Time) error {
	ct, err := t.tx.Exec(t.ctx,
		"UPDATE chains SET is_active = $2, updated_at = $3 WHERE chain_id = $1",
		chainID, active, updatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return chains.ErrNotFound
	}
	return nil
}

func (t *chainTx) ActiveParticipants(chainID string) ([]models.ChainParticipant, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT participant_id, chain_id, user_id, turn_position, is_active, last_turn_at, joined_at
		FROM chain_participants
		WHERE chain_id = $1 AND is_active`, chainID)
	if err != nil {
		return nil, fmt.Errorf("querying participants for chain %s: %w", chainID, err)
	}
	defer rows.Close()

	var participants []models.ChainParticipant
	for rows.Next() {
		var p models.ChainParticipant
		if err := rows.Scan(&p.ID, &p.ChainID, &p.UserID, &p.TurnPosition, &p.IsActive, &p.LastTurnAt, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scanning participant row: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (t *chainTx) InsertParticipant(p models.ChainParticipant) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO chain_participants (participant_id, chain_id, user_id, turn_position, is_active, last_turn_at, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.ChainID, p.UserID, p.TurnPosition, p.IsActive, p.LastTurnAt, p.JoinedAt)
	return err
}

func (t *chainTx) SetParticipantInactive(participantID string) error {
	ct, err := t.tx.Exec(t.ctx,
		"UPDATE chain_participants SET is_active = FALSE WHERE participant_id = $1",
		participantID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return chains.ErrNotFound
	}
	return nil
}

func (t *chainTx) SetTurnPosition(participantID string, position int) error {
	ct, err := t.tx.Exec(t.ctx,
		"UPDATE chain_participants SET turn_position = $2 WHERE participant_id = $1",
		participantID, position)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return chains.ErrNotFound
	}
	return nil
}

func (t *chainTx) SetLastTurnAt(participantID string, at time.Time) error {
	ct, err := t.tx.Exec(t.ctx,
		"UPDATE chain_participants SET last_turn_at = $2 WHERE participant_id = $1",
		participantID, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return chains.ErrNotFound
	}
	return nil
}

func (t *chainTx) LatestEvent(chainID string) (*models.PrayerEvent, error) {
	var e models.PrayerEvent
	err := t.tx.QueryRow(t.ctx, `
		SELECT event_id, chain_id, user_id, content, prayed_at
		FROM prayer_events
		WHERE chain_id = $1
		ORDER BY prayed_at DESC
		LIMIT 1`, chainID).
		Scan(&e.ID, &e.ChainID, &e.UserID, &e.Content, &e.PrayedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest event for chain %s: %w", chainID, err)
	}
	return &e, nil
}

func (t *chainTx) RecentEvents(chainID string, limit int) ([]models.PrayerEvent, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT event_id, chain_id, user_id, content, prayed_at
		FROM prayer_events
		WHERE chain_id = $1
		ORDER BY prayed_at DESC
		LIMIT $2`, chainID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events for chain %s: %w", chainID, err)
	}
	defer rows.Close()

	var events []models.PrayerEvent
	for rows.Next() {
		var e models.PrayerEvent
		if err := rows.Scan(&e.ID, &e.ChainID, &e.UserID, &e.Content, &e.PrayedAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (t *chainTx) InsertEvent(e models.PrayerEvent) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO prayer_events (event_id, chain_id, user_id, content, prayed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.ChainID, e.UserID, e.Content, e.PrayedAt)
	return err
}
