package hub

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/matchdesk/matchdesk/internal/gsi"
)

// Event names on the realtime channel. Renderer clients switch on the
// Name field of the envelope.
const (
	EventUpdate         = "update"
	EventMatch          = "match"
	EventRefreshHUD     = "refreshHUD"
	EventDashboardClear = "dashboard:clear"
)

// StaleAfter is how old the retained snapshot may be before a
// dashboard refresh is answered with a clear instead of the snapshot.
const StaleAfter = time.Second

// Event is one frame delivered to a subscriber.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MatchEvent is the payload of a "match" frame. Clients only key off
// id and current and re-fetch the full match over HTTP, so nothing
// more is carried.
type MatchEvent struct {
	ID      string `json:"id"`
	Current bool   `json:"current"`
}

// SnapshotSource yields the latest telemetry snapshot, if any. The
// digester satisfies it.
type SnapshotSource interface {
	Latest() (gsi.Snapshot, bool)
}

type Msg interface{ isHubMsg() }

// Join registers a subscriber. Events published before the join are
// never replayed; a fresh client pulls state via RefreshDashboard.
type Join struct {
	ClientID string
	Outbox   chan Event
}

type Leave struct{ ClientID string }

// Update fans the latest normalized telemetry payload out to every
// subscriber.
type Update struct{ Payload json.RawMessage }

// MatchChanged fans a current-match status change out to every
// subscriber.
type MatchChanged struct{ Event MatchEvent }

// RefreshHUD tells overlay renderers to reload their visual assets.
type RefreshHUD struct{}

// RefreshDashboard is the one request/response message: the hub
// answers the requesting subscriber only, with either the latest
// snapshot (if fresher than StaleAfter) or a dashboard:clear.
type RefreshDashboard struct{ ClientID string }

// GetView reflects hub internals without data races; test-only.
type GetView struct{ Reply chan View }

type Shutdown struct{}

func (Join) isHubMsg()             {}
func (Leave) isHubMsg()            {}
func (Update) isHubMsg()           {}
func (MatchChanged) isHubMsg()     {}
func (RefreshHUD) isHubMsg()       {}
func (RefreshDashboard) isHubMsg() {}
func (GetView) isHubMsg()          {}
func (Shutdown) isHubMsg()         {}

type View struct {
	NumClients int
}

// Hub is the broadcast fan-out actor. A single goroutine owns the
// subscriber map; all mutation flows through the inbox. Delivery is
// best-effort and non-durable: a subscriber whose outbox is full is
// dropped rather than back-pressuring the hub.
type Hub struct {
	inbox   chan Msg
	clients map[string]chan Event
	source  SnapshotSource
	logger  *zap.Logger
	now     func() time.Time
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(parent context.Context, source SnapshotSource, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan Msg, 64),
		clients: make(map[string]chan Event),
		source:  source,
		logger:  logger,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- Msg { return h.inbox }

// PublishMatch satisfies the publisher interface the store is given.
func (h *Hub) PublishMatch(ev MatchEvent) {
	h.inbox <- MatchChanged{Event: ev}
}

// PublishUpdate satisfies the publisher interface the coordinator is
// given.
func (h *Hub) PublishUpdate(payload json.RawMessage) {
	h.inbox <- Update{Payload: payload}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Join:
				h.clients[msg.ClientID] = msg.Outbox

			case Leave:
				delete(h.clients, msg.ClientID)

			case Update:
				h.broadcast(Event{Name: EventUpdate, Data: msg.Payload})

			case MatchChanged:
				data, err := json.Marshal(msg.Event)
				if err != nil {
					h.logger.Error("encoding match event", zap.Error(err))
					break
				}
				h.broadcast(Event{Name: EventMatch, Data: data})

			case RefreshHUD:
				h.broadcast(Event{Name: EventRefreshHUD})

			case RefreshDashboard:
				h.answerDashboard(msg.ClientID)

			case GetView:
				msg.Reply <- View{NumClients: len(h.clients)}

			case Shutdown:
				h.shutdown()
				return
			}
		}
	}
}

// answerDashboard replies to the requesting subscriber only. A missing
// or stale snapshot is not an error; it is an explicit clear.
func (h *Hub) answerDashboard(clientID string) {
	ch, ok := h.clients[clientID]
	if !ok {
		return
	}

	snap, ok := h.source.Latest()
	if !ok || h.now().Sub(snap.ReceivedAt) > StaleAfter {
		h.send(clientID, ch, Event{Name: EventDashboardClear})
		return
	}

	data, err := json.Marshal(snap)
	if err != nil {
		h.logger.Error("encoding snapshot", zap.Error(err))
		h.send(clientID, ch, Event{Name: EventDashboardClear})
		return
	}
	h.send(clientID, ch, Event{Name: EventUpdate, Data: data})
}

func (h *Hub) broadcast(ev Event) {
	for id, ch := range h.clients {
		h.send(id, ch, ev)
	}
}

// send never blocks the hub loop. A full outbox means the client has
// stalled; it is closed and dropped.
func (h *Hub) send(id string, ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
		h.logger.Warn("dropping stalled subscriber", zap.String("client_id", id))
		close(ch)
		delete(h.clients, id)
	}
}

func (h *Hub) shutdown() {
	for id, ch := range h.clients {
		close(ch)
		delete(h.clients, id)
	}
	h.cancel()
}
