package chains

import (
	"context"
	"errors"
	"time"

	"prayerchain_back_end_go/models"
)

// ErrNotFound is returned by Tx lookups when the requested row does not exist.
var ErrNotFound = errors.New("chains: not found")

// ErrConflict is returned by a Store when a transaction lost a write race
// (serialization failure or unique-index violation). The engine retries the
// whole operation a bounded number of times on this error.
var ErrConflict = errors.New("chains: transaction conflict")

// Tx is the set of storage operations available inside one transaction. All
// reads observe a single consistent snapshot and all writes commit or roll
// back together.
type Tx interface {
	GetChain(chainID string) (models.Chain, error)
	InsertChain(chain models.Chain) error
	SetChainActive(chainID string, active bool, updatedAt time.Time) error

	// ActiveParticipants returns the active membership rows of a chain in no
	// guaranteed order; callers sort via ActiveOrdered.
	ActiveParticipants(chainID string) ([]models.ChainParticipant, error)
	InsertParticipant(p models.ChainParticipant) error
	SetParticipantInactive(participantID string) error
	SetTurnPosition(participantID string, position int) error
	SetLastTurnAt(participantID string, at time.Time) error

	LatestEvent(chainID string) (*models.PrayerEvent, error)
	RecentEvents(chainID string, limit int) ([]models.PrayerEvent, error)
	InsertEvent(e models.PrayerEvent) error
}

// Store hands the engine transaction-scoped access to durable storage.
//
// WithinChain is the serialization primitive for everything that mutates one
// chain: the implementation must hold an exclusive per-chain lock (for the
// Postgres store, a SELECT ... FOR UPDATE on the chain row) for the whole of
// fn, so that concurrent join/leave/submit calls on the same chain execute in
// some total order. Chains never share a lock.
type Store interface {
	// Begin runs fn in a plain transaction, for mutations that cannot lock an
	// existing chain row (chain creation).
	Begin(ctx context.Context, fn func(Tx) error) error

	// WithinChain runs fn in a transaction holding the exclusive lock for
	// chainID. Returns ErrNotFound if the chain row does not exist.
	WithinChain(ctx context.Context, chainID string, fn func(Tx) error) error

	// View runs fn in a read-only transaction; it must not observe a roster
	// mid-mutation but is not required to block writers.
	View(ctx context.Context, fn func(Tx) error) error
}
