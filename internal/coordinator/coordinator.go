package coordinator

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/matchdesk/matchdesk/internal/gsi"
	"github.com/matchdesk/matchdesk/internal/match"
	"github.com/matchdesk/matchdesk/internal/store"
)

// ErrReverseUnavailable rejects a reverse-side request when the
// observed map does not appear in the match's veto sequence (or there
// is no live telemetry at all).
var ErrReverseUnavailable = errors.New("side reversal is not available for the observed map")

// UpdatePublisher fans a normalized telemetry payload out to renderer
// clients. The broadcast hub satisfies it.
type UpdatePublisher interface {
	PublishUpdate(payload json.RawMessage)
}

// Coordinator is the glue between telemetry, persisted match state and
// the broadcast hub. It pushes nothing into the store on telemetry
// arrival; its job is the ingest pipeline and on-demand queries that
// compose the latest snapshot with the current match.
type Coordinator struct {
	digester *gsi.Digester
	matches  *store.Store
	hub      UpdatePublisher
	logger   *zap.Logger
}

func New(digester *gsi.Digester, matches *store.Store, hub UpdatePublisher, logger *zap.Logger) *Coordinator {
	return &Coordinator{digester: digester, matches: matches, hub: hub, logger: logger}
}

// IngestTelemetry runs one push payload through normalize, digest and
// broadcast. Undecodable payloads are dropped and the previous
// snapshot stays latest; broadcast problems never reach the caller.
func (c *Coordinator) IngestTelemetry(body []byte) {
	raw, err := c.digester.Digest(body)
	if err != nil {
		return
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		c.logger.Error("encoding normalized payload", zap.Error(err))
		return
	}
	c.hub.PublishUpdate(payload)
}

// LiveMap returns the map name reported by the latest snapshot.
func (c *Coordinator) LiveMap() (string, bool) {
	snap, ok := c.digester.Latest()
	if !ok || snap.MapName == "" {
		return "", false
	}
	return snap.MapName, true
}

// CanReverseSides reports whether side reversal is legal for the
// current match right now: live telemetry exists, it names a map, and
// that map appears in the current match's veto sequence.
func (c *Coordinator) CanReverseSides(ctx context.Context) (bool, error) {
	m, err := c.matches.GetCurrent(ctx)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}
	liveMap, ok := c.LiveMap()
	if !ok {
		return false, nil
	}
	return match.CanReverseSides(m.Vetos, liveMap), nil
}

// ReverseSide toggles reverseSide on the veto entry for the observed
// map. Eligibility is re-checked here against the live snapshot, not
// trusted from client state.
func (c *Coordinator) ReverseSide(ctx context.Context, matchID string) error {
	m, err := c.matches.GetByID(ctx, matchID)
	if err != nil {
		return err
	}

	liveMap, ok := c.LiveMap()
	if !ok || !match.CanReverseSides(m.Vetos, liveMap) {
		return ErrReverseUnavailable
	}

	for i := range m.Vetos {
		if m.Vetos[i].MapName == liveMap {
			m.Vetos[i].ReverseSide = !m.Vetos[i].ReverseSide
		}
	}
	return c.matches.Update(ctx, *m)
}
