package arenadto

// Outbound notification names.
const (
	EvMatchmakingStatus = "matchmakingStatus"
	EvMatchProposal     = "matchProposal"
	EvMatchFound        = "matchFound"
	EvMatchDeclined     = "matchDeclined"
	EvMatchExpired      = "matchExpired"
	EvGameFull          = "gameFull"
	EvGameState         = "gameState"
	EvTimeUpdate        = "timeUpdate"
	EvGameOver          = "gameOver"
	EvGameStats         = "gameStats"
	EvDrawOffered       = "drawOffered"
	EvDrawDeclined      = "drawDeclined"
	EvCheatingWarning   = "cheatingWarning"
	EvOpponentLeft      = "opponentLeft"
	EvError             = "error"
)

type MatchmakingStatus struct {
	InQueue   bool `json:"inQueue"`
	QueueSize int  `json:"queueSize"`
}

// OpponentSummary is the public slice of a player shown to the other side.
type OpponentSummary struct {
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}

type MatchProposal struct {
	MatchID       string          `json:"matchId"`
	Opponent      OpponentSummary `json:"opponentSummary"`
	OpponentWager int             `json:"opponentWager"`
	TimeControl   int             `json:"timeControl"`
}

type MatchFound struct {
	SessionID   string          `json:"sessionId"`
	Color       string          `json:"color"`
	TimeControl int             `json:"timeControl"`
	Opponent    OpponentSummary `json:"opponentSummary"`
}

type GameFull struct {
	Color       string `json:"color"`
	State       string `json:"state"`
	TimeControl int    `json:"timeControl"`
}

type LastMove struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type GameState struct {
	BoardState string    `json:"boardState"`
	LastMove   *LastMove `json:"lastMove,omitempty"`
	Timestamp  int64     `json:"timestamp"`
}

type TimeUpdate struct {
	WhiteTimeRemaining int `json:"whiteTimeRemaining"`
	BlackTimeRemaining int `json:"blackTimeRemaining"`
}

type GameOver struct {
	Winner     string `json:"winner,omitempty"` // empty on draws
	Reason     string `json:"reason"`
	FinalState string `json:"finalState"`
}

type GameStats struct {
	WhiteRatingDelta int `json:"whiteRatingDelta"`
	BlackRatingDelta int `json:"blackRatingDelta"`
}

type CheatingWarning struct {
	Message string `json:"message"`
}

type OpponentLeft struct {
	Color string `json:"color"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}
