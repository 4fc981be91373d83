package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matchdesk/matchdesk/internal/gsi"
)

type fakeSource struct {
	snap gsi.Snapshot
	ok   bool
}

func (f *fakeSource) Latest() (gsi.Snapshot, bool) { return f.snap, f.ok }

func newTestHub(t *testing.T, source SnapshotSource) *Hub {
	t.Helper()
	if source == nil {
		source = &fakeSource{}
	}
	h := New(context.Background(), source, zap.NewNop())
	t.Cleanup(func() { h.Inbox() <- Shutdown{} })
	return h
}

func join(t *testing.T, h *Hub, id string, buf int) chan Event {
	t.Helper()
	out := make(chan Event, buf)
	h.Inbox() <- Join{ClientID: id, Outbox: out}
	return out
}

func recv(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertEmpty(t *testing.T, ch chan Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %q", ev.Name)
	default:
	}
}

func TestUpdateFansOutToAllSubscribers(t *testing.T) {
	h := newTestHub(t, nil)
	a := join(t, h, "a", 8)
	b := join(t, h, "b", 8)

	payload := json.RawMessage(`{"map":{"name":"de_mirage"}}`)
	h.PublishUpdate(payload)

	for _, ch := range []chan Event{a, b} {
		ev := recv(t, ch)
		assert.Equal(t, EventUpdate, ev.Name)
		assert.JSONEq(t, string(payload), string(ev.Data))
	}
}

func TestMatchEventCarriesIDAndCurrent(t *testing.T) {
	h := newTestHub(t, nil)
	out := join(t, h, "a", 8)

	h.PublishMatch(MatchEvent{ID: "m1", Current: true})

	ev := recv(t, out)
	require.Equal(t, EventMatch, ev.Name)
	var got MatchEvent
	require.NoError(t, json.Unmarshal(ev.Data, &got))
	assert.Equal(t, MatchEvent{ID: "m1", Current: true}, got)
}

func TestRefreshHUDIsContentFree(t *testing.T) {
	h := newTestHub(t, nil)
	out := join(t, h, "a", 8)

	h.Inbox() <- RefreshHUD{}

	ev := recv(t, out)
	assert.Equal(t, EventRefreshHUD, ev.Name)
	assert.Nil(t, ev.Data)
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	h := newTestHub(t, nil)
	h.PublishMatch(MatchEvent{ID: "m1", Current: true})

	late := join(t, h, "late", 8)
	// Force the join to be processed before checking.
	reply := make(chan View, 1)
	h.Inbox() <- GetView{Reply: reply}
	<-reply

	assertEmpty(t, late)
}

func TestRefreshDashboardAnswersRequesterOnly(t *testing.T) {
	source := &fakeSource{
		snap: gsi.Snapshot{MapName: "de_nuke", ReceivedAt: time.Now()},
		ok:   true,
	}
	h := newTestHub(t, source)
	requester := join(t, h, "requester", 8)
	other := join(t, h, "other", 8)

	h.Inbox() <- RefreshDashboard{ClientID: "requester"}

	ev := recv(t, requester)
	require.Equal(t, EventUpdate, ev.Name)
	var snap gsi.Snapshot
	require.NoError(t, json.Unmarshal(ev.Data, &snap))
	assert.Equal(t, "de_nuke", snap.MapName)

	assertEmpty(t, other)
}

func TestRefreshDashboardStaleSnapshotClears(t *testing.T) {
	source := &fakeSource{
		snap: gsi.Snapshot{MapName: "de_nuke", ReceivedAt: time.Now().Add(-2 * time.Second)},
		ok:   true,
	}
	h := newTestHub(t, source)
	out := join(t, h, "a", 8)

	h.Inbox() <- RefreshDashboard{ClientID: "a"}

	ev := recv(t, out)
	assert.Equal(t, EventDashboardClear, ev.Name)
}

func TestRefreshDashboardNoSnapshotClears(t *testing.T) {
	h := newTestHub(t, &fakeSource{ok: false})
	out := join(t, h, "a", 8)

	h.Inbox() <- RefreshDashboard{ClientID: "a"}

	ev := recv(t, out)
	assert.Equal(t, EventDashboardClear, ev.Name)
}

func TestStalledSubscriberIsDropped(t *testing.T) {
	h := newTestHub(t, nil)
	out := join(t, h, "stalled", 1)

	// First update fills the outbox; the second finds it full and
	// drops the subscriber instead of blocking the hub.
	h.PublishUpdate(json.RawMessage(`{}`))
	h.PublishUpdate(json.RawMessage(`{}`))

	reply := make(chan View, 1)
	h.Inbox() <- GetView{Reply: reply}
	view := <-reply
	assert.Equal(t, 0, view.NumClients)

	// The outbox is closed once drained.
	<-out
	_, open := <-out
	assert.False(t, open)
}
