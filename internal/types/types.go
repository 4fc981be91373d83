package types

// Wire messages for the realtime channel at /ws.
//
// Server -> Client frames are hub.Event envelopes:
//   {"event": "update", "data": <normalized payload or snapshot>}
//   {"event": "match", "data": {"id": "...", "current": false}}
//   {"event": "refreshHUD"}
//   {"event": "dashboard:clear"}
//
// Client -> Server frames carry only an event name.

type ClientMessage struct {
	Event string `json:"event"`
}

type ErrorMessage struct {
	Event string `json:"event"` // always "error"
	Error string `json:"error"`
}
