package match

// Type is a best-of series format. Each format implies a fixed veto
// template (see Template).
type Type string

const (
	TypeBo1 Type = "bo1"
	TypeBo3 Type = "bo3"
	TypeBo5 Type = "bo5"
)

// FallbackType is substituted for unrecognized match types coming from
// older databases or sloppy clients.
const FallbackType = TypeBo3

var Types = []Type{TypeBo1, TypeBo3, TypeBo5}

func ValidType(t Type) bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// VetoType is one kind of slot in the map-selection sequence.
type VetoType string

const (
	VetoBan     VetoType = "ban"
	VetoPick    VetoType = "pick"
	VetoDecider VetoType = "decider"
)

// TeamSide is the side a team starts a map on. SideNone means not chosen.
type TeamSide string

const (
	SideCT   TeamSide = "CT"
	SideT    TeamSide = "T"
	SideNone TeamSide = "NO"
)

// WinType records how a round was decided.
type WinType string

const (
	WinBomb        WinType = "bomb"
	WinElimination WinType = "elimination"
	WinDefuse      WinType = "defuse"
	WinTime        WinType = "time"
)

// PlayerRoundData is one player's contribution to a single round,
// keyed by steamid in RoundData.Players. The killshs tag matches the
// shape renderer clients already consume.
type PlayerRoundData struct {
	Kills         int `json:"kills"`
	HeadshotKills int `json:"killshs"`
	Damage        int `json:"damage"`
}

// RoundData is the outcome of one round on a vetoed map. Entries in
// Veto.Rounds may be nil for rounds not yet recorded.
type RoundData struct {
	Round   int                        `json:"round"`
	Players map[string]PlayerRoundData `json:"players"`
	Winner  TeamSide                   `json:"winner,omitempty"`
	WinType WinType                    `json:"win_type,omitempty"`
}

// Veto is one slot in a match's pick/ban sequence. TeamID is empty for
// decider slots: by the time the decider is reached both teams have
// spent their picks and bans.
type Veto struct {
	TeamID      string         `json:"teamId"`
	MapName     string         `json:"mapName"`
	Side        TeamSide       `json:"side"`
	Type        VetoType       `json:"type"`
	ReverseSide bool           `json:"reverseSide"`
	MapEnd      bool           `json:"mapEnd"`
	Score       map[string]int `json:"score,omitempty"`
	Winner      string         `json:"winner,omitempty"`
	Rounds      []*RoundData   `json:"rounds,omitempty"`
}

// Side is one half of a match. ID references a roster team and may be
// nil while the operator is still filling the form in.
type Side struct {
	ID   *string `json:"id"`
	Wins int     `json:"wins"`
}

// Match is the persisted unit of the control plane. At most one match
// may have Current set across the whole store; the store enforces it.
type Match struct {
	ID        string `json:"id"`
	Current   bool   `json:"current"`
	Left      Side   `json:"left"`
	Right     Side   `json:"right"`
	MatchType Type   `json:"matchType"`
	Vetos     []Veto `json:"vetos"`
}
