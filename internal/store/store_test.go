package store

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matchdesk/matchdesk/internal/hub"
	"github.com/matchdesk/matchdesk/internal/match"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []hub.MatchEvent
}

func (p *fakePublisher) PublishMatch(ev hub.MatchEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *fakePublisher) all() []hub.MatchEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]hub.MatchEvent(nil), p.events...)
}

func (p *fakePublisher) last() (hub.MatchEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return hub.MatchEvent{}, false
	}
	return p.events[len(p.events)-1], true
}

func newTestStore(t *testing.T) (*Store, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	s, err := Open(Config{
		Path:      ":memory:",
		PoolSize:  1,
		Publisher: pub,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, pub
}

func sampleMatch(t match.Type) match.Match {
	left, right := "team-x", "team-y"
	return match.Match{
		Left:      match.Side{ID: &left},
		Right:     match.Side{ID: &right},
		MatchType: t,
		Vetos:     match.DefaultVetos(t),
	}
}

func TestOpenValidatesConfig(t *testing.T) {
	_, err := Open(Config{Publisher: &fakePublisher{}, Logger: zap.NewNop()})
	require.Error(t, err)

	_, err = Open(Config{Path: ":memory:", Logger: zap.NewNop()})
	require.Error(t, err)

	_, err = Open(Config{Path: ":memory:", Publisher: &fakePublisher{}})
	require.Error(t, err)
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	m := sampleMatch(match.TypeBo3)
	m.Vetos[0].TeamID = "team-x"
	m.Vetos[0].MapName = "de_mirage"
	m.Vetos[0].MapEnd = true
	m.Vetos[0].Winner = "team-x"
	m.Vetos[0].Score = map[string]int{"team-x": 13, "team-y": 4}
	m.Vetos[0].Rounds = []*match.RoundData{
		{
			Round: 1,
			Players: map[string]match.PlayerRoundData{
				"76561198000000001": {Kills: 3, HeadshotKills: 2, Damage: 254},
			},
			Winner:  match.SideCT,
			WinType: match.WinDefuse,
		},
		nil,
	}

	id, err := s.Create(ctx, m)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, m.Left, got.Left)
	assert.Equal(t, m.Right, got.Right)
	assert.Equal(t, m.MatchType, got.MatchType)
	assert.Equal(t, m.Vetos, got.Vetos)
}

func TestGetByIDNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCurrentMatchLifecycle(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()

	m1, err := s.Create(ctx, sampleMatch(match.TypeBo1))
	require.NoError(t, err)
	m2, err := s.Create(ctx, sampleMatch(match.TypeBo3))
	require.NoError(t, err)

	// No current match yet.
	cur, err := s.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Nil(t, cur)

	require.NoError(t, s.SetCurrent(ctx, m1, true))

	cur, err = s.GetCurrent(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, m1, cur.ID)

	// A second current match is a conflict.
	err = s.SetCurrent(ctx, m2, true)
	require.ErrorIs(t, err, ErrCurrentConflict)

	// Re-flagging the already current match is not.
	require.NoError(t, s.SetCurrent(ctx, m1, true))

	require.NoError(t, s.SetCurrent(ctx, m1, false))
	require.NoError(t, s.SetCurrent(ctx, m2, true))

	last, ok := pub.last()
	require.True(t, ok)
	assert.Equal(t, hub.MatchEvent{ID: m2, Current: true}, last)
}

func TestSetCurrentMissingMatch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.ErrorIs(t, s.SetCurrent(ctx, "missing", true), ErrNotFound)
	require.ErrorIs(t, s.SetCurrent(ctx, "missing", false), ErrNotFound)
}

func TestUpdateRejectsSecondCurrent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	m1, err := s.Create(ctx, sampleMatch(match.TypeBo1))
	require.NoError(t, err)
	m2id, err := s.Create(ctx, sampleMatch(match.TypeBo3))
	require.NoError(t, err)
	require.NoError(t, s.SetCurrent(ctx, m1, true))

	m2, err := s.GetByID(ctx, m2id)
	require.NoError(t, err)
	m2.Current = true

	err = s.Update(ctx, *m2)
	require.ErrorIs(t, err, ErrCurrentConflict)

	// The rejected write left nothing behind.
	got, err := s.GetByID(ctx, m2id)
	require.NoError(t, err)
	assert.False(t, got.Current)
}

func TestUpdateOfCurrentMatchNotifies(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, sampleMatch(match.TypeBo3))
	require.NoError(t, err)
	require.NoError(t, s.SetCurrent(ctx, id, true))

	m, err := s.GetByID(ctx, id)
	require.NoError(t, err)

	// A score-only edit of the live match still notifies subscribers.
	m.Vetos[0].MapName = "de_mirage"
	m.Vetos[0].Score = map[string]int{"team-x": 5, "team-y": 2}
	before := len(pub.all())
	require.NoError(t, s.Update(ctx, *m))

	events := pub.all()
	require.Len(t, events, before+1)
	assert.Equal(t, hub.MatchEvent{ID: id, Current: true}, events[len(events)-1])

	// Clearing the flag through an update also notifies: the match
	// was current before the write.
	m.Current = false
	require.NoError(t, s.Update(ctx, *m))
	last, _ := pub.last()
	assert.Equal(t, hub.MatchEvent{ID: id, Current: false}, last)
}

func TestUpdateOfNonCurrentMatchIsSilent(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, sampleMatch(match.TypeBo3))
	require.NoError(t, err)

	m, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	m.Vetos[0].MapName = "de_nuke"
	require.NoError(t, s.Update(ctx, *m))

	assert.Empty(t, pub.all())
}

func TestRemoveCurrentMatchNotifies(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, sampleMatch(match.TypeBo1))
	require.NoError(t, err)
	require.NoError(t, s.SetCurrent(ctx, id, true))

	require.NoError(t, s.Remove(ctx, id))

	last, ok := pub.last()
	require.True(t, ok)
	assert.Equal(t, hub.MatchEvent{ID: id, Current: false}, last)

	_, err = s.GetByID(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, s.Remove(ctx, id), ErrNotFound)
}

func TestRemoveOtherMatchIsSilent(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, sampleMatch(match.TypeBo1))
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, id))
	assert.Empty(t, pub.all())
}

// At most one match may be current at any observation point, no matter
// how create/set-current/remove operations interleave.
func TestSingleCurrentInvariantUnderRandomOps(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))

	var ids []string
	for i := 0; i < 200; i++ {
		switch op := rng.Intn(4); {
		case op == 0 || len(ids) == 0:
			id, err := s.Create(ctx, sampleMatch(match.TypeBo3))
			require.NoError(t, err)
			ids = append(ids, id)
		case op == 1:
			id := ids[rng.Intn(len(ids))]
			err := s.SetCurrent(ctx, id, true)
			if err != nil {
				require.ErrorIs(t, err, ErrCurrentConflict)
			}
		case op == 2:
			id := ids[rng.Intn(len(ids))]
			require.NoError(t, s.SetCurrent(ctx, id, false))
		default:
			idx := rng.Intn(len(ids))
			require.NoError(t, s.Remove(ctx, ids[idx]))
			ids = append(ids[:idx], ids[idx+1:]...)
		}

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		currents := 0
		for _, m := range all {
			if m.Current {
				currents++
			}
		}
		require.LessOrEqual(t, currents, 1)
	}
}
