package entity

// Actions exchanged with the match server.
const (
	EventJoinGame           = "joinGame"
	EventMatchFound         = "matchFound"
	EventMakeMove           = "makeMove"
	EventGameUpdate         = "gameUpdate"
	EventPlayerDisconnected = "playerDisconnected"
)

// Transport lifecycle events, raised locally by the connection manager.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
)

// MovePayload is sent with EventMakeMove.
type MovePayload struct {
	Room     string `json:"room"`
	Position int    `json:"position"`
}
