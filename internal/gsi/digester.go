package gsi

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Snapshot is the digested view of one telemetry payload. It is a
// read-only copy: the digester hands out values, never its internal
// pointer, so consumers can hold one across payload replacements.
type Snapshot struct {
	MapName    string       `json:"mapName"`
	MapPhase   string       `json:"mapPhase,omitempty"`
	Round      int          `json:"round"`
	RoundPhase string       `json:"roundPhase,omitempty"`
	BombState  string       `json:"bombState,omitempty"`
	CT         TeamSnapshot `json:"ct"`
	T          TeamSnapshot `json:"t"`
	Players    []PlayerInfo `json:"players,omitempty"`
	Observed   *PlayerInfo  `json:"observed,omitempty"`
	Provider   ProviderInfo `json:"provider"`
	ReceivedAt time.Time    `json:"receivedAt"`
}

type TeamSnapshot struct {
	Name              string `json:"name,omitempty"`
	Score             int    `json:"score"`
	TimeoutsRemaining int    `json:"timeoutsRemaining"`
}

type PlayerInfo struct {
	SteamID      string `json:"steamid"`
	Name         string `json:"name"`
	ObserverSlot int    `json:"observerSlot"`
	Team         string `json:"team,omitempty"`
	Kills        int    `json:"kills"`
	Assists      int    `json:"assists"`
	Deaths       int    `json:"deaths"`
	MVPs         int    `json:"mvps"`
	Score        int    `json:"score"`
}

type ProviderInfo struct {
	Name      string `json:"name,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Digester owns the latest telemetry snapshot. Exactly one snapshot is
// retained: each successfully decoded payload replaces the previous
// one atomically from the consumer's point of view.
type Digester struct {
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	latest *Snapshot
}

func NewDigester(logger *zap.Logger) *Digester {
	return &Digester{logger: logger, now: time.Now}
}

// Digest decodes one raw payload, normalizes it in place and replaces
// the retained snapshot. On decode failure the previous snapshot stays
// current and the error is returned for logging only; digestion is
// defensive about everything short of unparseable JSON.
func (d *Digester) Digest(body []byte) (*Raw, error) {
	var raw Raw
	if err := json.Unmarshal(body, &raw); err != nil {
		d.logger.Warn("dropping undecodable telemetry payload", zap.Error(err))
		return nil, err
	}
	Normalize(&raw)

	snap := buildSnapshot(&raw, d.now())
	d.mu.Lock()
	d.latest = snap
	d.mu.Unlock()
	return &raw, nil
}

// Latest returns a copy of the retained snapshot and whether one
// exists. ReceivedAt carries the wall-clock arrival time for freshness
// checks.
func (d *Digester) Latest() (Snapshot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.latest == nil {
		return Snapshot{}, false
	}
	return *d.latest, true
}

func buildSnapshot(raw *Raw, receivedAt time.Time) *Snapshot {
	snap := &Snapshot{ReceivedAt: receivedAt}

	if raw.Provider != nil {
		snap.Provider = ProviderInfo{Name: raw.Provider.Name, Timestamp: raw.Provider.Timestamp}
	}
	if raw.Map != nil {
		snap.MapName = MapBaseName(raw.Map.Name)
		snap.MapPhase = raw.Map.Phase
		snap.Round = raw.Map.Round
		if raw.Map.TeamCT != nil {
			snap.CT = teamSnapshot(raw.Map.TeamCT)
		}
		if raw.Map.TeamT != nil {
			snap.T = teamSnapshot(raw.Map.TeamT)
		}
	}
	if raw.Round != nil {
		snap.RoundPhase = raw.Round.Phase
	}
	if raw.Bomb != nil {
		snap.BombState = raw.Bomb.State
	}
	if raw.Player != nil {
		p := playerInfo(raw.Player.SteamID, raw.Player)
		snap.Observed = &p
	}
	for id, p := range raw.AllPlayers {
		snap.Players = append(snap.Players, playerInfo(id, p))
	}
	sort.Slice(snap.Players, func(i, j int) bool {
		a, b := snap.Players[i], snap.Players[j]
		if a.ObserverSlot != b.ObserverSlot {
			return a.ObserverSlot < b.ObserverSlot
		}
		return a.SteamID < b.SteamID
	})
	return snap
}

func teamSnapshot(t *RawTeam) TeamSnapshot {
	return TeamSnapshot{Name: t.Name, Score: t.Score, TimeoutsRemaining: t.TimeoutsRemaining}
}

func playerInfo(steamID string, p *RawPlayer) PlayerInfo {
	info := PlayerInfo{SteamID: steamID, Name: p.Name, Team: p.Team}
	if p.ObserverSlot != nil {
		info.ObserverSlot = *p.ObserverSlot
	}
	if p.MatchStats != nil {
		info.Kills = p.MatchStats.Kills
		info.Assists = p.MatchStats.Assists
		info.Deaths = p.MatchStats.Deaths
		info.MVPs = p.MatchStats.MVPs
		info.Score = p.MatchStats.Score
	}
	return info
}

// MapBaseName strips any workshop path prefix from a map name, e.g.
// "workshop/12345/de_mirage" becomes "de_mirage".
func MapBaseName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
