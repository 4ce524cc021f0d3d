package arenadto

import "encoding/json"

// Envelope is the framing for every inbound websocket message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound operation names.
const (
	OpCreateGame       = "createGame"
	OpJoinGame         = "joinGame"
	OpJoinMatchmaking  = "joinMatchmaking"
	OpLeaveMatchmaking = "leaveMatchmaking"
	OpAcceptMatch      = "acceptMatch"
	OpDeclineMatch     = "declineMatch"
	OpMove             = "move"
	OpResign           = "resign"
	OpOfferDraw        = "offerDraw"
	OpAcceptDraw       = "acceptDraw"
	OpDeclineDraw      = "declineDraw"
)

type CreateGameRequest struct {
	TimeControlSeconds int `json:"timeControlSeconds"`
	Wager              int `json:"wager"`
}

type JoinGameRequest struct {
	SessionID string `json:"sessionId"`
}

type JoinMatchmakingRequest struct {
	TimeControlSeconds int `json:"timeControlSeconds"`
	Wager              int `json:"wager"`
}

type MatchRequest struct {
	MatchID string `json:"matchId"`
}

type MoveRequest struct {
	SessionID   string `json:"sessionId"`
	From        string `json:"from"`
	To          string `json:"to"`
	Promotion   string `json:"promotion,omitempty"`
	ClientState string `json:"clientState,omitempty"`
}

// SessionRequest covers resign/offerDraw/acceptDraw/declineDraw.
type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

// Ack is the structured response returned for every inbound operation.
type Ack struct {
	OK        bool   `json:"ok"`
	ErrorCode string `json:"errorCode,omitempty"`
	Error     string `json:"error,omitempty"`

	// Operation-specific fields, present when meaningful.
	SessionID   string `json:"sessionId,omitempty"`
	Color       string `json:"color,omitempty"`
	TimeControl int    `json:"timeControl,omitempty"`
	Accepted    *bool  `json:"accepted,omitempty"`
}
