// Package chaintest provides an in-memory chains.Store for tests. It keeps
// the same serialization contract as the Postgres store: mutations on one
// chain run under a per-chain mutex, and a transaction's writes are staged
// and only merged into the store when the transaction function succeeds.
package chaintest

import (
	"context"
	"sort"
	"sync"
	"time"

	"prayerchain_back_end_go/chains"
	"prayerchain_back_end_go/models"
)

type MemStore struct {
	mu           sync.Mutex
	locks        map[string]*sync.Mutex
	chains       map[string]models.Chain
	participants map[string]models.ChainParticipant
	events       []models.PrayerEvent

	failSetLastTurnAt error
}

func NewMemStore() *MemStore {
	return &MemStore{
		locks:        make(map[string]*sync.Mutex),
		chains:       make(map[string]models.Chain),
		participants: make(map[string]models.ChainParticipant),
	}
}

// FailSetLastTurnAt makes every subsequent SetLastTurnAt call fail with err,
// simulating a storage fault between the event insert and the participant
// update. Pass nil to clear the fault.
func (s *MemStore) FailSetLastTurnAt(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSetLastTurnAt = err
}

// OverridePosition rewrites a participant's turn position directly, bypassing
// the engine. Used to manufacture corrupt rosters.
func (s *MemStore) OverridePosition(participantID string, position int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok {
		panic("chaintest: unknown participant " + participantID)
	}
	p.TurnPosition = position
	s.participants[participantID] = p
}

// EventCount reports how many committed prayer events a chain has.
func (s *MemStore) EventCount(chainID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.ChainID == chainID {
			n++
		}
	}
	return n
}

func (s *MemStore) chainLock(chainID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[chainID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chainID] = l
	}
	return l
}

func (s *MemStore) Begin(ctx context.Context, fn func(chains.Tx) error) error {
	tx := s.newTx()
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *MemStore) WithinChain(ctx context.Context, chainID string, fn func(chains.Tx) error) error {
	lock := s.chainLock(chainID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	_, ok := s.chains[chainID]
	s.mu.Unlock()
	if !ok {
		return chains.ErrNotFound
	}

	tx := s.newTx()
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *MemStore) View(ctx context.Context, fn func(chains.Tx) error) error {
	return fn(s.newTx())
}

func (s *MemStore) newTx() *memTx {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &memTx{
		store:             s,
		chains:            make(map[string]models.Chain),
		participants:      make(map[string]models.ChainParticipant),
		failSetLastTurnAt: s.failSetLastTurnAt,
	}
}

func (s *MemStore) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range tx.chains {
		s.chains[id] = c
	}
	for id, p := range tx.participants {
		s.participants[id] = p
	}
	s.events = append(s.events, tx.events...)
}

// memTx overlays staged writes on top of the committed store state.
type memTx struct {
	store        *MemStore
	chains       map[string]models.Chain
	participants map[string]models.ChainParticipant
	events       []models.PrayerEvent

	failSetLastTurnAt error
}

func (t *memTx) GetChain(chainID string) (models.Chain, error) {
	if c, ok := t.chains[chainID]; ok {
		return c, nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if c, ok := t.store.chains[chainID]; ok {
		return c, nil
	}
	return models.Chain{}, chains.ErrNotFound
}

func (t *memTx) InsertChain(c models.Chain) error {
	t.chains[c.ID] = c
	return nil
}

func (t *memTx) SetChainActive(chainID string, active bool, updatedAt time.Time) error {
	c, err := t.GetChain(chainID)
	if err != nil {
		return err
	}
	c.IsActive = active
	c.UpdatedAt = updatedAt
	t.chains[chainID] = c
	return nil
}

func (t *memTx) getParticipant(participantID string) (models.ChainParticipant, error) {
	if p, ok := t.participants[participantID]; ok {
		return p, nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if p, ok := t.store.participants[participantID]; ok {
		return p, nil
	}
	return models.ChainParticipant{}, chains.ErrNotFound
}

func (t *memTx) allParticipants() map[string]models.ChainParticipant {
	merged := make(map[string]models.ChainParticipant)
	t.store.mu.Lock()
	for id, p := range t.store.participants {
		merged[id] = p
	}
	t.store.mu.Unlock()
	for id, p := range t.participants {
		merged[id] = p
	}
	return merged
}

func (t *memTx) ActiveParticipants(chainID string) ([]models.ChainParticipant, error) {
	var out []models.ChainParticipant
	for _, p := range t.allParticipants() {
		if p.ChainID == chainID && p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *memTx) InsertParticipant(p models.ChainParticipant) error {
	// Mirror the partial unique indexes of the Postgres schema.
	for _, other := range t.allParticipants() {
		if other.ChainID != p.ChainID || !other.IsActive || !p.IsActive {
			continue
		}
		if other.TurnPosition == p.TurnPosition || other.UserID == p.UserID {
			return chains.ErrConflict
		}
	}
	t.participants[p.ID] = p
	return nil
}

func (t *memTx) SetParticipantInactive(participantID string) error {
	p, err := t.getParticipant(participantID)
	if err != nil {
		return err
	}
	p.IsActive = false
	t.participants[participantID] = p
	return nil
}

func (t *memTx) SetTurnPosition(participantID string, position int) error {
	p, err := t.getParticipant(participantID)
	if err != nil {
		return err
	}
	p.TurnPosition = position
	t.participants[participantID] = p
	return nil
}

func (t *memTx) SetLastTurnAt(participantID string, at time.Time) error {
	if t.failSetLastTurnAt != nil {
		return t.failSetLastTurnAt
	}
	p, err := t.getParticipant(participantID)
	if err != nil {
		return err
	}
	p.LastTurnAt = &at
	t.participants[participantID] = p
	return nil
}

func (t *memTx) allEvents(chainID string) []models.PrayerEvent {
	var out []models.PrayerEvent
	t.store.mu.Lock()
	for _, e := range t.store.events {
		if e.ChainID == chainID {
			out = append(out, e)
		}
	}
	t.store.mu.Unlock()
	for _, e := range t.events {
		if e.ChainID == chainID {
			out = append(out, e)
		}
	}
	// Stable ordering: newest first, insertion order breaking timestamp ties.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PrayedAt.After(out[j].PrayedAt)
	})
	return out
}

func (t *memTx) LatestEvent(chainID string) (*models.PrayerEvent, error) {
	events := t.allEvents(chainID)
	if len(events) == 0 {
		return nil, nil
	}
	e := events[0]
	return &e, nil
}

func (t *memTx) RecentEvents(chainID string, limit int) ([]models.PrayerEvent, error) {
	events := t.allEvents(chainID)
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (t *memTx) InsertEvent(e models.PrayerEvent) error {
	t.events = append(t.events, e)
	return nil
}
