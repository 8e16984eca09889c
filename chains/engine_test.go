package chains_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"prayerchain_back_end_go/chains"
	"prayerchain_back_end_go/chains/chaintest"
	"prayerchain_back_end_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock hands out strictly increasing timestamps so event ordering is
// deterministic.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestEngine() (*chains.Engine, *chaintest.MemStore) {
	store := chaintest.NewMemStore()
	return chains.NewEngineWithClock(store, newTestClock().Now), store
}

func mustCreate(t *testing.T, e *chains.Engine, creatorID string, maxParticipants int) models.Chain {
	t.Helper()
	chain, err := e.CreateChain(context.Background(), chains.CreateChainInput{
		Title:            "Morning chain",
		Description:      "Daily rotation",
		CreatorID:        creatorID,
		MaxParticipants:  maxParticipants,
		TurnDurationDays: 2,
	})
	require.NoError(t, err)
	return chain
}

func TestCreateChain_Validation(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	cases := []chains.CreateChainInput{
		{Title: "", CreatorID: "u1", MaxParticipants: 3, TurnDurationDays: 1},
		{Title: "   ", CreatorID: "u1", MaxParticipants: 3, TurnDurationDays: 1},
		{Title: "ok", CreatorID: "", MaxParticipants: 3, TurnDurationDays: 1},
		{Title: "ok", CreatorID: "u1", MaxParticipants: 1, TurnDurationDays: 1},
		{Title: "ok", CreatorID: "u1", MaxParticipants: 3, TurnDurationDays: 0},
	}
	for _, in := range cases {
		_, err := e.CreateChain(ctx, in)
		require.Error(t, err)
		assert.Equal(t, chains.ErrCodeInvalidInput, chains.CodeOf(err))
	}
}

func TestCreateChain_EnrollsCreatorAtPositionZero(t *testing.T) {
	e, _ := newTestEngine()
	chain := mustCreate(t, e, "u1", 3)

	assert.True(t, chain.IsActive)
	assert.Equal(t, "u1", chain.CreatorID)

	view, err := e.GetChainView(context.Background(), chain.ID)
	require.NoError(t, err)
	require.Len(t, view.Roster, 1)
	assert.Equal(t, "u1", view.Roster[0].UserID)
	assert.Equal(t, 0, view.Roster[0].TurnPosition)
	require.NotNil(t, view.CurrentTurn)
	assert.Equal(t, "u1", view.CurrentTurn.UserID)
	assert.Empty(t, view.RecentEvents)
}

func TestJoinChain_AssignsNextPosition(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	chain := mustCreate(t, e, "u1", 3)

	p2, err := e.JoinChain(ctx, chain.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, p2.TurnPosition)

	p3, err := e.JoinChain(ctx, chain.ID, "u3")
	require.NoError(t, err)
	assert.Equal(t, 2, p3.TurnPosition)
}

func TestJoinChain_Failures(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	chain := mustCreate(t, e, "u1", 2)

	_, err := e.JoinChain(ctx, "no-such-chain", "u2")
	assert.Equal(t, chains.ErrCodeChainNotFound, chains.CodeOf(err))

	_, err = e.JoinChain(ctx, chain.ID, "u1")
	assert.Equal(t, chains.ErrCodeAlreadyMember, chains.CodeOf(err))

	_, err = e.JoinChain(ctx, chain.ID, "u2")
	require.NoError(t, err)

	_, err = e.JoinChain(ctx, chain.ID, "u3")
	assert.Equal(t, chains.ErrCodeChainFull, chains.CodeOf(err))

	require.NoError(t, e.DeactivateChain(ctx, chain.ID, "u1"))
	_, err = e.JoinChain(ctx, chain.ID, "u4")
	assert.Equal(t, chains.ErrCodeChainInactive, chains.CodeOf(err))
}

func TestJoinChain_ConcurrentJoinsRespectCapacity(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	chain := mustCreate(t, e, "u1", 2)

	const racers = 6
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.JoinChain(ctx, chain.ID, fmt.Sprintf("racer-%d", i))
		}(i)
	}
	wg.Wait()

	joined := 0
	for _, err := range errs {
		if err == nil {
			joined++
			continue
		}
		assert.Equal(t, chains.ErrCodeChainFull, chains.CodeOf(err))
	}
	// Creator holds one of the two slots.
	assert.Equal(t, 1, joined)

	view, err := e.GetChainView(ctx, chain.ID)
	require.NoError(t, err)
	assert.Len(t, view.Roster, 2)
}

func TestLeaveChain_RenumbersRemaining(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	chain := mustCreate(t, e, "u1", 4)
	_, err := e.JoinChain(ctx, chain.ID, "u2")
	require.NoError(t, err)
	_, err = e.JoinChain(ctx, chain.ID, "u3")
	require.NoError(t, err)

	require.NoError(t, e.LeaveChain(ctx, chain.ID, "u2"))

	view, err := e.GetChainView(ctx, chain.ID)
	require.NoError(t, err)
	require.Len(t, view.Roster, 2)
	assert.Equal(t, "u1", view.Roster[0].UserID)
	assert.Equal(t, 0, view.Roster[0].TurnPosition)
	assert.Equal(t, "u3", view.Roster[1].UserID)
	assert.Equal(t, 1, view.Roster[1].TurnPosition)
}

func TestLeaveChain_Failures(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	chain := mustCreate(t, e, "u1", 3)

	err := e.LeaveChain(ctx, "no-such-chain", "u1")
	assert.Equal(t, chains.ErrCodeChainNotFound, chains.CodeOf(err))

	err = e.LeaveChain(ctx, chain.ID, "u2")
	assert.Equal(t, chains.ErrCodeNotAMember, chains.CodeOf(err))

	// Leaving twice: the second call is no longer a member.
	require.NoError(t, e.LeaveChain(ctx, chain.ID, "u1"))
	err = e.LeaveChain(ctx, chain.ID, "u1")
	assert.Equal(t, chains.ErrCodeNotAMember, chains.CodeOf(err))
}

func TestLeaveChain_AllowedOnInactiveChain(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	chain := mustCreate(t, e, "u1", 3)
	_, err := e.JoinChain(ctx, chain.ID, "u2")
	require.NoError(t, err)

	require.NoError(t, e.DeactivateChain(ctx, chain.ID, "u1"))
	require.NoError(t, e.LeaveChain(ctx, chain.ID, "u2"))
}

func TestSubmitPrayer_AdvancesRotation(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	chain := mustCreate(t, e, "u1", 3)
	_, err := e.JoinChain(ctx, chain.ID, "u2")
	require.NoError(t, err)
	_, err = e.JoinChain(ctx, chain.ID, "u3")
	require.NoError(t, err)

	for _, uid := range []string{"u1", "u2", "u3", "u1"} {
		view, err := e.GetChainView(ctx, chain.ID)
		require.NoError(t, err)
		require.NotNil(t, view.CurrentTurn)
		require.Equal(t, uid, view.CurrentTurn.UserID)

		event, err := e.SubmitPrayer(ctx, chain.ID, uid, "praying for the group")
		require.NoError(t, err)
		assert.Equal(t, uid, event.UserID)
	}

	view, err := e.GetChainView(ctx, chain.ID)
	require.NoError(t, err)
	require.Len(t, view.RecentEvents, 4)
	// Newest first.
	assert.Equal(t, "u1", view.RecentEvents[0].UserID)
	assert.Equal(t, "u3", view.RecentEvents[1].UserID)
}

func TestSubmitPrayer_StampsLastTurnAt(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	chain := mustCreate(t, e, "u1", 3)

	event, err := e.SubmitPrayer(ctx, chain.ID, "u1", "amen")
	require.NoError(t, err)

	view, err := e.GetChainView(ctx, chain.ID)
	require.NoError(t, err)
	require.Len(t, view.Roster, 1)
	require.NotNil(t, view.Roster[0].LastTurnAt)
	assert.Equal(t, event.PrayedAt, *view.Roster[0].LastTurnAt)
}

func TestSubmitPrayer_Failures(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	chain := mustCreate(t, e, "u1", 3)
	_, err := e.JoinChain(ctx, chain.ID, "u2")
	require.NoError(t, err)

	_, err = e.SubmitPrayer(ctx, chain.ID, "u1", "")
	assert.Equal(t, chains.ErrCodeEmptyContent, chains.CodeOf(err))

	_, err = e.SubmitPrayer(ctx, chain.ID, "u1", "   ")
	assert.Equal(t, chains.ErrCodeEmptyContent, chains.CodeOf(err))

	_, err = e.SubmitPrayer(ctx, "no-such-chain", "u1", "amen")
	assert.Equal(t, chains.ErrCodeChainNotFound, chains.CodeOf(err))

	_, err = e.SubmitPrayer(ctx, chain.ID, "u2", "amen")
	assert.Equal(t, chains.ErrCodeNotYourTurn, chains.CodeOf(err))

	// Non-members are never anyone's turn.
	_, err = e.SubmitPrayer(ctx, chain.ID, "stranger", "amen")
	assert.Equal(t, chains.ErrCodeNotYourTurn, chains.CodeOf(err))

	require.NoError(t, e.DeactivateChain(ctx, chain.ID, "u1"))
	_, err = e.SubmitPrayer(ctx, chain.ID, "u1", "amen")
	assert.Equal(t, chains.ErrCodeChainInactive, chains.CodeOf(err))
}

func TestSubmitPrayer_ConcurrentOffTurnSubmitsAllRejected(t *testing.T) {
	e, store := newTestEngine()
	ctx := context.Background()
	chain := mustCreate(t, e, "u1", 3)
	_, err := e.JoinChain(ctx, chain.ID, "u2")
	require.NoError(t, err)
	_, err = e.JoinChain(ctx, chain.ID, "u3")
	require.NoError(t, err)

	// Turn belongs to u1; u2 and u3 race their submissions.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, uid := range []string{"u2", "u3"} {
		wg.Add(1)
		go func(i int, uid string) {
			defer wg.Done()
			_, errs[i] = e.SubmitPrayer(ctx, chain.ID, uid, "out of turn")
		}(i, uid)
	}
	wg.Wait()

	for _, err := range errs {
		assert.Equal(t, chains.ErrCodeNotYourTurn, chains.CodeOf(err))
	}
	assert.Equal(t, 0, store.EventCount(chain.ID))
}

func TestSubmitPrayer_ConcurrentOnTurnSubmitsCommitOnce(t *testing.T) {
	e, store := newTestEngine()
	ctx := context.Background()
	chain := mustCreate(t, e, "u1", 3)
	_, err := e.JoinChain(ctx, chain.ID, "u2")
	require.NoError(t, err)

	// Two identical submissions from the turn holder race; the loser of the
	// serialization sees the rotation already advanced.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.SubmitPrayer(ctx, chain.ID, "u1", "amen")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, chains.ErrCodeNotYourTurn, chains.CodeOf(err))
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, store.EventCount(chain.ID))
}

func TestSubmitPrayer_RollsBackEventOnLaterFailure(t *testing.T) {
	e, store := newTestEngine()
	ctx := context.Background()
	chain := mustCreate(t, e, "u1", 3)

	store.FailSetLastTurnAt(fmt.Errorf("storage fault"))
	_, err := e.SubmitPrayer(ctx, chain.ID, "u1", "amen")
	require.Error(t, err)
	assert.Equal(t, 0, store.EventCount(chain.ID))

	view, err := e.GetChainView(ctx, chain.ID)
	require.NoError(t, err)
	require.NotNil(t, view.CurrentTurn)
	assert.Equal(t, "u1", view.CurrentTurn.UserID)

	store.FailSetLastTurnAt(nil)
	_, err = e.SubmitPrayer(ctx, chain.ID, "u1", "amen")
	require.NoError(t, err)
	assert.Equal(t, 1, store.EventCount(chain.ID))
}

func TestDeactivateChain(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	chain := mustCreate(t, e, "u1", 3)
	_, err := e.JoinChain(ctx, chain.ID, "u2")
	require.NoError(t, err)

	err = e.DeactivateChain(ctx, chain.ID, "u2")
	assert.Equal(t, chains.ErrCodeNotCreator, chains.CodeOf(err))

	err = e.DeactivateChain(ctx, "no-such-chain", "u1")
	assert.Equal(t, chains.ErrCodeChainNotFound, chains.CodeOf(err))

	require.NoError(t, e.DeactivateChain(ctx, chain.ID, "u1"))
	// Terminal and idempotent.
	require.NoError(t, e.DeactivateChain(ctx, chain.ID, "u1"))

	view, err := e.GetChainView(ctx, chain.ID)
	require.NoError(t, err)
	assert.False(t, view.Chain.IsActive)
	assert.Len(t, view.Roster, 2)
}

func TestGetChainView_NotFound(t *testing.T) {
	e, _ := newTestEngine()

	_, err := e.GetChainView(context.Background(), "no-such-chain")
	assert.Equal(t, chains.ErrCodeChainNotFound, chains.CodeOf(err))
}

// The end-to-end scenario: creation, joins, a prayer, then a departure that
// shifts the rotation.
func TestRotationScenario(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	chain, err := e.CreateChain(ctx, chains.CreateChainInput{
		Title:            "Evening chain",
		CreatorID:        "u1",
		MaxParticipants:  3,
		TurnDurationDays: 2,
	})
	require.NoError(t, err)

	view, err := e.GetChainView(ctx, chain.ID)
	require.NoError(t, err)
	require.NotNil(t, view.CurrentTurn)
	assert.Equal(t, "u1", view.CurrentTurn.UserID)

	_, err = e.JoinChain(ctx, chain.ID, "u2")
	require.NoError(t, err)
	_, err = e.JoinChain(ctx, chain.ID, "u3")
	require.NoError(t, err)

	_, err = e.SubmitPrayer(ctx, chain.ID, "u1", "first prayer")
	require.NoError(t, err)

	view, err = e.GetChainView(ctx, chain.ID)
	require.NoError(t, err)
	require.NotNil(t, view.CurrentTurn)
	assert.Equal(t, "u2", view.CurrentTurn.UserID)

	require.NoError(t, e.LeaveChain(ctx, chain.ID, "u2"))

	view, err = e.GetChainView(ctx, chain.ID)
	require.NoError(t, err)
	require.Len(t, view.Roster, 2)
	assert.Equal(t, "u1", view.Roster[0].UserID)
	assert.Equal(t, 0, view.Roster[0].TurnPosition)
	assert.Equal(t, "u3", view.Roster[1].UserID)
	assert.Equal(t, 1, view.Roster[1].TurnPosition)
	// Last event was u1's, so the turn falls to u3.
	require.NotNil(t, view.CurrentTurn)
	assert.Equal(t, "u3", view.CurrentTurn.UserID)
}

func TestMutations_AbortOnCorruptRoster(t *testing.T) {
	e, store := newTestEngine()
	ctx := context.Background()
	chain := mustCreate(t, e, "u1", 4)
	p2, err := e.JoinChain(ctx, chain.ID, "u2")
	require.NoError(t, err)

	// Force a duplicate active position behind the engine's back.
	store.OverridePosition(p2.ID, 0)

	_, err = e.JoinChain(ctx, chain.ID, "u3")
	assert.True(t, chains.IsRosterCorrupt(err))

	err = e.LeaveChain(ctx, chain.ID, "u2")
	assert.True(t, chains.IsRosterCorrupt(err))

	_, err = e.SubmitPrayer(ctx, chain.ID, "u1", "amen")
	assert.True(t, chains.IsRosterCorrupt(err))

	assert.Equal(t, 0, store.EventCount(chain.ID))
}

// flakyStore injects transaction conflicts before delegating to the real
// in-memory store.
type flakyStore struct {
	chains.Store
	mu        sync.Mutex
	conflicts int
	calls     int
}

func (s *flakyStore) WithinChain(ctx context.Context, chainID string, fn func(chains.Tx) error) error {
	s.mu.Lock()
	s.calls++
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return chains.ErrConflict
	}
	s.mu.Unlock()
	return s.Store.WithinChain(ctx, chainID, fn)
}

func TestJoinChain_RetriesConflictThenSucceeds(t *testing.T) {
	mem := chaintest.NewMemStore()
	flaky := &flakyStore{Store: mem, conflicts: 1}
	e := chains.NewEngineWithClock(flaky, newTestClock().Now)
	ctx := context.Background()

	chain, err := e.CreateChain(ctx, chains.CreateChainInput{
		Title:            "Retry chain",
		CreatorID:        "u1",
		MaxParticipants:  3,
		TurnDurationDays: 1,
	})
	require.NoError(t, err)

	p, err := e.JoinChain(ctx, chain.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, p.TurnPosition)
	assert.Equal(t, 2, flaky.calls)
}

func TestJoinChain_GivesUpAfterBoundedRetries(t *testing.T) {
	mem := chaintest.NewMemStore()
	flaky := &flakyStore{Store: mem, conflicts: 100}
	e := chains.NewEngineWithClock(flaky, newTestClock().Now)
	ctx := context.Background()

	chain, err := e.CreateChain(ctx, chains.CreateChainInput{
		Title:            "Retry chain",
		CreatorID:        "u1",
		MaxParticipants:  3,
		TurnDurationDays: 1,
	})
	require.NoError(t, err)

	_, err = e.JoinChain(ctx, chain.ID, "u2")
	require.ErrorIs(t, err, chains.ErrConflict)
	assert.Equal(t, 3, flaky.calls)
}
