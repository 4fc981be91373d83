package gsi

import "encoding/json"

// Raw mirrors the game client's game-state-integration push payload.
// Every sub-object is optional: the client omits sections that did not
// change or that the config did not subscribe to, so all of them are
// pointers. Fields this service never inspects are carried opaquely as
// json.RawMessage so the broadcast keeps the full vendor payload.
type Raw struct {
	Provider   *RawProvider          `json:"provider,omitempty"`
	Map        *RawMap               `json:"map,omitempty"`
	Round      *RawRound             `json:"round,omitempty"`
	Player     *RawPlayer            `json:"player,omitempty"`
	AllPlayers map[string]*RawPlayer `json:"allplayers,omitempty"`
	Bomb       *RawBomb              `json:"bomb,omitempty"`
	Phase      json.RawMessage       `json:"phase_countdowns,omitempty"`
	Grenades   json.RawMessage       `json:"grenades,omitempty"`
	Previously json.RawMessage       `json:"previously,omitempty"`
	Added      json.RawMessage       `json:"added,omitempty"`
	Auth       json.RawMessage       `json:"auth,omitempty"`
}

type RawProvider struct {
	Name      string `json:"name"`
	AppID     int    `json:"appid"`
	Version   int    `json:"version"`
	SteamID   string `json:"steamid"`
	Timestamp int64  `json:"timestamp"`
}

type RawMap struct {
	Mode                  string            `json:"mode,omitempty"`
	Name                  string            `json:"name"`
	Phase                 string            `json:"phase,omitempty"`
	Round                 int               `json:"round,omitempty"`
	TeamCT                *RawTeam          `json:"team_ct,omitempty"`
	TeamT                 *RawTeam          `json:"team_t,omitempty"`
	NumMatchesToWinSeries int               `json:"num_matches_to_win_series,omitempty"`
	RoundWins             map[string]string `json:"round_wins,omitempty"`
}

type RawTeam struct {
	Name                   string `json:"name,omitempty"`
	Flag                   string `json:"flag,omitempty"`
	Score                  int    `json:"score"`
	ConsecutiveRoundLosses int    `json:"consecutive_round_losses,omitempty"`
	TimeoutsRemaining      int    `json:"timeouts_remaining,omitempty"`
	MatchesWonThisSeries   int    `json:"matches_won_this_series,omitempty"`
}

type RawRound struct {
	Phase   string `json:"phase"`
	WinTeam string `json:"win_team,omitempty"`
	Bomb    string `json:"bomb,omitempty"`
}

// RawPlayer describes either the locally observed player or one entry
// of the allplayers collection. ObserverSlot is a pointer: the
// normalizer must distinguish an absent slot from slot 0.
type RawPlayer struct {
	SteamID      string          `json:"steamid,omitempty"`
	Name         string          `json:"name,omitempty"`
	ObserverSlot *int            `json:"observer_slot,omitempty"`
	Team         string          `json:"team,omitempty"`
	Activity     string          `json:"activity,omitempty"`
	State        json.RawMessage `json:"state,omitempty"`
	MatchStats   *RawMatchStats  `json:"match_stats,omitempty"`
	Weapons      json.RawMessage `json:"weapons,omitempty"`
	Position     string          `json:"position,omitempty"`
	Forward      string          `json:"forward,omitempty"`
}

type RawMatchStats struct {
	Kills   int `json:"kills"`
	Assists int `json:"assists"`
	Deaths  int `json:"deaths"`
	MVPs    int `json:"mvps"`
	Score   int `json:"score"`
}

type RawBomb struct {
	State     string `json:"state"`
	Position  string `json:"position,omitempty"`
	Player    string `json:"player,omitempty"`
	Countdown string `json:"countdown,omitempty"`
}
