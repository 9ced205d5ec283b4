package game

import "github.com/quizlive/quizlive/internal/models"

// EventType is the wire name of an outbound socket event.
type EventType string

const (
	EventGameCreated     EventType = "game:created"
	EventPlayerJoined    EventType = "player:joined"
	EventPlayerList      EventType = "update:player_list"
	EventPlayerAnswered  EventType = "update:player_answered"
	EventNewQuestion     EventType = "game:new_question"
	EventShowLeaderboard EventType = "game:show_leaderboard"
	EventGameOver        EventType = "game:over"
	EventWait            EventType = "game:wait"
	EventRedirectLobby   EventType = "redirect:lobby"

	EventErrorGeneric     EventType = "error:generic"
	EventErrorNotFound    EventType = "error:room_not_found"
	EventErrorGameStarted EventType = "error:game_already_started"
)

// Event is a single outbound message. Data is one of the payload structs
// below, or nil for bare notifications like game:wait.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// Broadcaster delivers events to connections bound to a session. Delivery is
// fire-and-forget: a dropped connection simply misses the event until it
// reconnects and is resynced.
type Broadcaster interface {
	// ToRoom sends to every connection in the session's broadcast group.
	ToRoom(joinCode string, ev Event)
	// ToConn sends to a single connection.
	ToConn(connID string, ev Event)
}

// CreatedPayload confirms room creation to the host.
type CreatedPayload struct {
	Pin string `json:"pin"`
}

// JoinedPayload confirms a successful join to one player.
type JoinedPayload struct {
	Pin string `json:"pin"`
}

// RedirectPayload sends a participant back to the lobby screen.
type RedirectPayload struct {
	Pin string `json:"pin"`
}

// ErrorPayload carries a human-readable error message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// QuestionPayload is broadcast when a question opens, and re-sent to a single
// connection on resync. Time is the remaining budget in seconds: the full
// budget on a fresh question, less on resync.
type QuestionPayload struct {
	Title          string   `json:"title"`
	Options        []string `json:"options"`
	QuestionIndex  int      `json:"questionIndex"`
	TotalQuestions int      `json:"totalQuestions"`
	TotalPlayers   int      `json:"totalPlayers"`
	Time           int      `json:"time"`
}

// PlayerListPayload updates the host's lobby roster view.
type PlayerListPayload struct {
	Players []models.Player `json:"players"`
}

// AnsweredPayload is the live answered/total counter sent to the host.
type AnsweredPayload struct {
	TotalAnswered int `json:"totalAnswered"`
	TotalPlayers  int `json:"totalPlayers"`
}

// LeaderboardPayload shows ranked scores plus the just-closed question's
// correct answer.
type LeaderboardPayload struct {
	Players            []models.Player `json:"players"`
	CorrectAnswerIndex int             `json:"correctAnswerIndex"`
	CorrectAnswerText  string          `json:"correctAnswerText"`
}

// GameOverPayload is the final ranked roster.
type GameOverPayload struct {
	Players []models.Player `json:"players"`
}
