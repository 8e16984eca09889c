package chains

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"prayerchain_back_end_go/models"

	"github.com/google/uuid"
)

// maxTxAttempts bounds retries of transactions that lost a write race.
const maxTxAttempts = 3

const recentEventLimit = 20

// Engine implements the prayer-chain rotation operations. All mutations on one
// chain are serialized through Store.WithinChain, so their effects are
// equivalent to some total order; operations on different chains are
// independent.
type Engine struct {
	store Store
	now   func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// NewEngineWithClock is used by tests that need deterministic timestamps.
func NewEngineWithClock(store Store, now func() time.Time) *Engine {
	return &Engine{store: store, now: now}
}

type CreateChainInput struct {
	Title            string
	Description      string
	CreatorID        string
	MaxParticipants  int
	TurnDurationDays int
}

// CreateChain creates a chain and enrolls its creator as the participant at
// turn position 0 in the same transaction. A chain never exists without its
// creator as a member.
func (e *Engine) CreateChain(ctx context.Context, in CreateChainInput) (models.Chain, error) {
	if strings.TrimSpace(in.Title) == "" {
		return models.Chain{}, invalidInput("title must not be empty")
	}
	if in.CreatorID == "" {
		return models.Chain{}, invalidInput("creator id must not be empty")
	}
	if in.MaxParticipants < 2 {
		return models.Chain{}, invalidInput("max participants must be at least 2")
	}
	if in.TurnDurationDays < 1 {
		return models.Chain{}, invalidInput("turn duration must be at least 1 day")
	}

	now := e.now()
	chain := models.Chain{
		ID:               uuid.NewString(),
		Title:            strings.TrimSpace(in.Title),
		Description:      in.Description,
		CreatorID:        in.CreatorID,
		MaxParticipants:  in.MaxParticipants,
		TurnDurationDays: in.TurnDurationDays,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	creator := models.ChainParticipant{
		ID:           uuid.NewString(),
		ChainID:      chain.ID,
		UserID:       in.CreatorID,
		TurnPosition: 0,
		IsActive:     true,
		JoinedAt:     now,
	}

	err := e.store.Begin(ctx, func(tx Tx) error {
		if err := tx.InsertChain(chain); err != nil {
			return err
		}
		return tx.InsertParticipant(creator)
	})
	if err != nil {
		return models.Chain{}, err
	}
	return chain, nil
}

// JoinChain adds userID to the chain's rotation at the last position. The
// capacity and membership checks run under the chain lock, so racing joins
// cannot exceed the capacity or produce duplicate positions.
func (e *Engine) JoinChain(ctx context.Context, chainID, userID string) (models.ChainParticipant, error) {
	if userID == "" {
		return models.ChainParticipant{}, invalidInput("user id must not be empty")
	}

	var joined models.ChainParticipant
	err := e.retryOnConflict(ctx, "join", chainID, func() error {
		return e.withinChain(ctx, chainID, func(tx Tx) error {
			chain, err := tx.GetChain(chainID)
			if err != nil {
				return err
			}
			if !chain.IsActive {
				return chainInactive(chainID)
			}

			active, err := tx.ActiveParticipants(chainID)
			if err != nil {
				return err
			}
			roster := ActiveOrdered(active)
			if err := e.checkRoster(chainID, roster); err != nil {
				return err
			}
			for _, p := range roster {
				if p.UserID == userID {
					return alreadyMember(userID)
				}
			}
			if len(roster) >= chain.MaxParticipants {
				return chainFull(chain.MaxParticipants)
			}

			joined = models.ChainParticipant{
				ID:           uuid.NewString(),
				ChainID:      chainID,
				UserID:       userID,
				TurnPosition: len(roster),
				IsActive:     true,
				JoinedAt:     e.now(),
			}
			return tx.InsertParticipant(joined)
		})
	})
	if err != nil {
		return models.ChainParticipant{}, err
	}
	return joined, nil
}

// LeaveChain deactivates userID's membership and renumbers the remaining
// active participants to close the gap, keeping active positions a contiguous
// 0..k-1 run. Departed rows keep their old position for history. Leaving is
// allowed on deactivated chains.
func (e *Engine) LeaveChain(ctx context.Context, chainID, userID string) error {
	return e.withinChain(ctx, chainID, func(tx Tx) error {
		active, err := tx.ActiveParticipants(chainID)
		if err != nil {
			return err
		}
		roster := ActiveOrdered(active)
		if err := e.checkRoster(chainID, roster); err != nil {
			return err
		}

		idx := -1
		for i, p := range roster {
			if p.UserID == userID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return notAMember(userID)
		}

		if err := tx.SetParticipantInactive(roster[idx].ID); err != nil {
			return err
		}
		for _, p := range roster[idx+1:] {
			if err := tx.SetTurnPosition(p.ID, p.TurnPosition-1); err != nil {
				return err
			}
		}

		remaining, err := tx.ActiveParticipants(chainID)
		if err != nil {
			return err
		}
		return e.checkRoster(chainID, ActiveOrdered(remaining))
	})
}

// SubmitPrayer validates that it is userID's turn and records the prayer
// event, stamping the participant's last turn time in the same transaction.
// The turn check and the write hold the chain lock together, so a concurrent
// submit, join or leave cannot invalidate the check between steps.
func (e *Engine) SubmitPrayer(ctx context.Context, chainID, userID, content string) (models.PrayerEvent, error) {
	if strings.TrimSpace(content) == "" {
		return models.PrayerEvent{}, emptyContent()
	}

	var event models.PrayerEvent
	err := e.retryOnConflict(ctx, "submit prayer", chainID, func() error {
		return e.withinChain(ctx, chainID, func(tx Tx) error {
			chain, err := tx.GetChain(chainID)
			if err != nil {
				return err
			}
			if !chain.IsActive {
				return chainInactive(chainID)
			}

			active, err := tx.ActiveParticipants(chainID)
			if err != nil {
				return err
			}
			roster := ActiveOrdered(active)
			if err := e.checkRoster(chainID, roster); err != nil {
				return err
			}
			last, err := tx.LatestEvent(chainID)
			if err != nil {
				return err
			}

			turn := CurrentTurn(roster, last)
			if turn == nil || turn.UserID != userID {
				return notYourTurn(userID)
			}

			now := e.now()
			event = models.PrayerEvent{
				ID:       uuid.NewString(),
				ChainID:  chainID,
				UserID:   userID,
				Content:  content,
				PrayedAt: now,
			}
			if err := tx.InsertEvent(event); err != nil {
				return err
			}
			return tx.SetLastTurnAt(turn.ID, now)
		})
	})
	if err != nil {
		return models.PrayerEvent{}, err
	}
	return event, nil
}

// DeactivateChain soft-closes a chain. Only the creator may deactivate; the
// transition is terminal and idempotent. Deactivated chains reject join and
// submit but still serve reads and leave.
func (e *Engine) DeactivateChain(ctx context.Context, chainID, actorID string) error {
	return e.withinChain(ctx, chainID, func(tx Tx) error {
		chain, err := tx.GetChain(chainID)
		if err != nil {
			return err
		}
		if chain.CreatorID != actorID {
			return notCreator(actorID)
		}
		if !chain.IsActive {
			return nil
		}
		return tx.SetChainActive(chainID, false, e.now())
	})
}

// GetChainView assembles the read model for one chain from a single snapshot.
func (e *Engine) GetChainView(ctx context.Context, chainID string) (models.ChainView, error) {
	var view models.ChainView
	err := e.store.View(ctx, func(tx Tx) error {
		chain, err := tx.GetChain(chainID)
		if err != nil {
			return err
		}
		active, err := tx.ActiveParticipants(chainID)
		if err != nil {
			return err
		}
		last, err := tx.LatestEvent(chainID)
		if err != nil {
			return err
		}
		events, err := tx.RecentEvents(chainID, recentEventLimit)
		if err != nil {
			return err
		}

		roster := ActiveOrdered(active)
		view = models.ChainView{
			Chain:        chain,
			Roster:       roster,
			CurrentTurn:  CurrentTurn(roster, last),
			RecentEvents: events,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.ChainView{}, chainNotFound(chainID)
		}
		return models.ChainView{}, err
	}
	return view, nil
}

// withinChain wraps Store.WithinChain, translating a missing chain row into
// the operational not-found error.
func (e *Engine) withinChain(ctx context.Context, chainID string, fn func(Tx) error) error {
	err := e.store.WithinChain(ctx, chainID, fn)
	if errors.Is(err, ErrNotFound) {
		return chainNotFound(chainID)
	}
	return err
}

// checkRoster logs and surfaces a roster invariant violation. The transaction
// aborts and the error is never retried.
func (e *Engine) checkRoster(chainID string, roster []models.ChainParticipant) error {
	if err := CheckRoster(chainID, roster); err != nil {
		log.Printf("roster invariant violated, aborting transaction: %v", err)
		return err
	}
	return nil
}

// retryOnConflict reruns fn when the transaction lost a write race. Only
// ErrConflict is retried; every other failure kind returns immediately.
func (e *Engine) retryOnConflict(ctx context.Context, op, chainID string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		log.Printf("%s on chain %s hit a transaction conflict (attempt %d/%d), retrying", op, chainID, attempt, maxTxAttempts)
	}
	return err
}
