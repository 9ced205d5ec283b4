package game

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/quizlive/quizlive/internal/models"
)

// Phase is the lifecycle phase of a live session.
type Phase string

const (
	PhaseLobby       Phase = "LOBBY"
	PhaseQuestion    Phase = "QUESTION_ACTIVE"
	PhaseLeaderboard Phase = "LEADERBOARD"
	PhaseEnded       Phase = "ENDED"
)

// Config holds session timing. BaseScore is deliberately not configurable.
type Config struct {
	DefaultQuestionSec int // budget for questions that carry no limit of their own
	LeaderboardSec     int // leaderboard interlude between questions
}

// DefaultConfig mirrors the classic 15s question / 3s leaderboard pacing.
func DefaultConfig() Config {
	return Config{DefaultQuestionSec: 15, LeaderboardSec: 3}
}

// Session is one live quiz event. All mutable state is guarded by mu: every
// inbound action and every timer fire is handled as an atomic unit of work,
// so no two handlers for the same session ever interleave their mutations.
// Sessions are independent and run fully in parallel with each other.
type Session struct {
	quiz   models.QuizSnapshot
	hostID string

	clock       clockwork.Clock
	broadcaster Broadcaster
	cfg         Config
	// onEnded receives the final result after the game:over broadcast. It is
	// invoked on its own goroutine, outside the session lock.
	onEnded func(models.GameResult)

	mu                sync.Mutex
	joinCode          string
	phase             Phase
	questionIndex     int
	answeredCount     int
	players           []*models.Player
	hostConnID        string
	awaitingHost      bool
	awaitingHostSince time.Time
	questionDeadline  time.Time

	// At most one outstanding phase-advance timer. Every transition bumps
	// timerGen so a cancelled or superseded timer can never fire a duplicate
	// transition.
	timer    clockwork.Timer
	timerGen uint64
}

// NewSession creates a session in the lobby phase. The join code is assigned
// when the session is added to a Registry.
func NewSession(quiz models.QuizSnapshot, hostID, hostConnID string, clock clockwork.Clock, b Broadcaster, cfg Config, onEnded func(models.GameResult)) *Session {
	return &Session{
		quiz:          quiz,
		hostID:        hostID,
		hostConnID:    hostConnID,
		clock:         clock,
		broadcaster:   b,
		cfg:           cfg,
		onEnded:       onEnded,
		phase:         PhaseLobby,
		questionIndex: -1,
	}
}

// JoinCode returns the code assigned by the registry.
func (s *Session) JoinCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joinCode
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Players returns a copy of the roster in its current order.
func (s *Session) Players() []models.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playersCopyLocked()
}

// Join adds a player during the lobby phase. Joining twice with the same
// stable identity rebinds the existing player to the new connection instead
// of duplicating the roster entry. A zero identity is rejected: such an entry
// could never be matched again by an answer or a rejoin, and would block the
// all-answered early close for the rest of the game.
func (s *Session) Join(identity models.Identity, name, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if identity.IsZero() {
		return ErrInvalidIdentity
	}
	if s.phase != PhaseLobby {
		return ErrGameAlreadyStarted
	}

	if p := s.findPlayerLocked(identity); p != nil {
		p.ConnectionID = connID
		p.Connected = true
		s.broadcaster.ToConn(connID, Event{Type: EventPlayerJoined, Data: JoinedPayload{Pin: s.joinCode}})
		s.notifyPlayerListLocked()
		return nil
	}

	s.players = append(s.players, &models.Player{
		Identity:     identity,
		Name:         name,
		ConnectionID: connID,
		Connected:    true,
		JoinOrder:    len(s.players),
	})
	s.broadcaster.ToConn(connID, Event{Type: EventPlayerJoined, Data: JoinedPayload{Pin: s.joinCode}})
	s.notifyPlayerListLocked()

	log.Info().Str("join_code", s.joinCode).Str("player", name).Msg("player joined")
	return nil
}

// Start transitions Lobby -> QuestionActive(0). Only the authorizing host
// may start the game.
func (s *Session) Start(callerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if callerID == "" || callerID != s.hostID {
		return ErrNotHost
	}
	if s.phase != PhaseLobby {
		return ErrGameAlreadyStarted
	}
	log.Info().Str("join_code", s.joinCode).Int("players", len(s.players)).Msg("game started")
	s.nextQuestionLocked()
	return nil
}

// Answer records a player's submission for the current question. The first
// answer per player per question is authoritative; later ones are no-ops with
// no penalty and no double counting.
func (s *Session) Answer(identity models.Identity, optionIndex int, elapsedSec float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findPlayerLocked(identity)
	if p != nil && p.AnsweredThisQuestion {
		// Duplicate for the current question, possibly racing the
		// leaderboard transition. Silent no-op either way.
		return nil
	}
	if s.phase != PhaseQuestion {
		return ErrNotAcceptingAnswers
	}
	if p == nil {
		return ErrUnknownParticipant
	}

	q := s.quiz.Questions[s.questionIndex]
	correct := optionIndex == q.CorrectOptionIndex
	pts := Score(correct, elapsedSec, float64(s.questionBudgetLocked()))

	p.Score += pts
	p.LastAnswerCorrect = correct
	p.AnsweredThisQuestion = true
	s.answeredCount++

	log.Debug().
		Str("join_code", s.joinCode).
		Str("player", p.Name).
		Int("question", s.questionIndex).
		Bool("correct", correct).
		Int("points", pts).
		Msg("answer recorded")

	s.notifyAnsweredCountLocked()

	// All currently-joined players answered: close the question early and
	// cancel the outstanding timer.
	if s.answeredCount == len(s.players) {
		s.showLeaderboardLocked()
	}
	return nil
}

// RejoinHost rebinds the host identity to a new connection. With gameScreen
// set the in-flight question payload and live answered counts are resent to
// that connection only; otherwise the lobby roster is.
func (s *Session) RejoinHost(callerID, connID string, gameScreen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if callerID == "" || callerID != s.hostID {
		return ErrNotHost
	}
	s.hostConnID = connID
	s.awaitingHost = false

	if !gameScreen {
		s.notifyPlayerListLocked()
		return nil
	}
	if s.phase == PhaseQuestion {
		s.broadcaster.ToConn(connID, Event{Type: EventNewQuestion, Data: s.questionPayloadLocked(s.remainingSecLocked())})
		s.broadcaster.ToConn(connID, Event{Type: EventPlayerAnswered, Data: AnsweredPayload{
			TotalAnswered: s.answeredCount,
			TotalPlayers:  len(s.players),
		}})
	}
	return nil
}

// RejoinPlayer rebinds a returning player's identity to a new connection and
// resyncs exactly the in-flight state: the current question if they have not
// answered it, a waiting notice if they have, or a lobby redirect if the game
// has not started. Score and answered flags are never reset by reconnection.
func (s *Session) RejoinPlayer(identity models.Identity, connID string, lobbyScreen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findPlayerLocked(identity)
	if p == nil {
		return ErrUnknownParticipant
	}
	p.ConnectionID = connID
	p.Connected = true

	if lobbyScreen {
		return nil
	}

	s.notifyAnsweredCountLocked()

	switch {
	case s.phase == PhaseQuestion && !p.AnsweredThisQuestion:
		s.broadcaster.ToConn(connID, Event{Type: EventNewQuestion, Data: s.questionPayloadLocked(s.remainingSecLocked())})
	case s.questionIndex >= 0 && p.AnsweredThisQuestion:
		s.broadcaster.ToConn(connID, Event{Type: EventWait})
	case s.questionIndex == -1:
		s.broadcaster.ToConn(connID, Event{Type: EventRedirectLobby, Data: RedirectPayload{Pin: s.joinCode}})
	}
	return nil
}

// Disconnect handles a dropped connection. A departing host marks the session
// awaiting-host-reconnect instead of tearing it down. A departing player is
// removed from the roster only while the session is still in the lobby; once
// live they stay (marked disconnected) so rejoin resync and scores survive.
func (s *Session) Disconnect(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if connID == s.hostConnID {
		s.hostConnID = ""
		s.awaitingHost = true
		s.awaitingHostSince = s.clock.Now()
		log.Info().Str("join_code", s.joinCode).Msg("host disconnected, awaiting reconnect")
		return
	}

	for i, p := range s.players {
		if p.ConnectionID != connID {
			continue
		}
		if s.phase == PhaseLobby {
			s.players = append(s.players[:i], s.players[i+1:]...)
			s.notifyPlayerListLocked()
			log.Info().Str("join_code", s.joinCode).Str("player", p.Name).Msg("player left lobby")
		} else {
			p.Connected = false
		}
		return
	}
}

// AbandonedSince reports whether the host has been gone longer than maxAge.
func (s *Session) AbandonedSince(maxAge time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaitingHost && s.clock.Now().Sub(s.awaitingHostSince) >= maxAge
}

// Shutdown cancels any outstanding timer. Used when a session is evicted
// without reaching the ended phase.
func (s *Session) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimerLocked()
	s.phase = PhaseEnded
}

// --- internal transitions; callers hold s.mu ---

func (s *Session) nextQuestionLocked() {
	s.cancelTimerLocked()

	s.answeredCount = 0
	for _, p := range s.players {
		p.AnsweredThisQuestion = false
	}
	s.questionIndex++

	if s.questionIndex >= len(s.quiz.Questions) {
		s.endGameLocked()
		return
	}

	s.phase = PhaseQuestion
	budget := s.questionBudgetLocked()
	s.questionDeadline = s.clock.Now().Add(time.Duration(budget) * time.Second)

	s.broadcaster.ToRoom(s.joinCode, Event{Type: EventNewQuestion, Data: s.questionPayloadLocked(budget)})
	log.Info().Str("join_code", s.joinCode).Int("question", s.questionIndex).Msg("question opened")

	s.armTimerLocked(time.Duration(budget) * time.Second)
}

func (s *Session) showLeaderboardLocked() {
	s.cancelTimerLocked()
	s.sortPlayersLocked()
	s.phase = PhaseLeaderboard

	q := s.quiz.Questions[s.questionIndex]
	correctText := ""
	if q.CorrectOptionIndex >= 0 && q.CorrectOptionIndex < len(q.Options) {
		correctText = q.Options[q.CorrectOptionIndex]
	}
	s.broadcaster.ToRoom(s.joinCode, Event{Type: EventShowLeaderboard, Data: LeaderboardPayload{
		Players:            s.playersCopyLocked(),
		CorrectAnswerIndex: q.CorrectOptionIndex,
		CorrectAnswerText:  correctText,
	}})
	log.Info().Str("join_code", s.joinCode).Int("question", s.questionIndex).Msg("leaderboard shown")

	s.armTimerLocked(time.Duration(s.cfg.LeaderboardSec) * time.Second)
}

func (s *Session) endGameLocked() {
	s.cancelTimerLocked()
	s.sortPlayersLocked()
	s.phase = PhaseEnded

	s.broadcaster.ToRoom(s.joinCode, Event{Type: EventGameOver, Data: GameOverPayload{Players: s.playersCopyLocked()}})
	log.Info().Str("join_code", s.joinCode).Msg("game over")

	results := make([]models.PlayerResult, len(s.players))
	for i, p := range s.players {
		results[i] = models.PlayerResult{Name: p.Name, Score: p.Score, Identity: p.Identity}
	}
	result := models.GameResult{
		QuizID:     s.quiz.QuizID,
		HostID:     s.hostID,
		JoinCode:   s.joinCode,
		Results:    results,
		FinishedAt: s.clock.Now(),
	}
	// The end-of-game broadcast above is irrevocable; the handoff runs
	// outside the lock and its failure is logged, never surfaced to clients.
	if s.onEnded != nil {
		go s.onEnded(result)
	}
}

// armTimerLocked schedules the single outstanding phase-advance, replacing
// whatever timer the previous phase left behind.
func (s *Session) armTimerLocked(d time.Duration) {
	s.cancelTimerLocked()
	s.timerGen++
	gen := s.timerGen
	s.timer = s.clock.AfterFunc(d, func() {
		s.advance(gen)
	})
}

func (s *Session) cancelTimerLocked() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
	// Invalidate in case Stop lost the race with the callback.
	s.timerGen++
}

// advance is the timer callback. The generation check guarantees a cancelled
// or superseded timer never fires a duplicate transition.
func (s *Session) advance(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.timerGen {
		return
	}
	s.timer = nil
	switch s.phase {
	case PhaseQuestion:
		log.Debug().Str("join_code", s.joinCode).Int("question", s.questionIndex).Msg("question timer expired")
		s.showLeaderboardLocked()
	case PhaseLeaderboard:
		s.nextQuestionLocked()
	}
}

// --- locked helpers ---

func (s *Session) findPlayerLocked(identity models.Identity) *models.Player {
	for _, p := range s.players {
		if p.Identity.Matches(identity) {
			return p
		}
	}
	return nil
}

func (s *Session) questionBudgetLocked() int {
	if q := s.quiz.Questions[s.questionIndex]; q.TimeLimitSec > 0 {
		return q.TimeLimitSec
	}
	return s.cfg.DefaultQuestionSec
}

func (s *Session) remainingSecLocked() int {
	remaining := int(s.questionDeadline.Sub(s.clock.Now()).Seconds() + 0.5)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (s *Session) questionPayloadLocked(timeSec int) QuestionPayload {
	q := s.quiz.Questions[s.questionIndex]
	return QuestionPayload{
		Title:          q.Title,
		Options:        q.Options,
		QuestionIndex:  s.questionIndex,
		TotalQuestions: len(s.quiz.Questions),
		TotalPlayers:   len(s.players),
		Time:           timeSec,
	}
}

// sortPlayersLocked orders the roster by score descending, ties broken by
// original join order.
func (s *Session) sortPlayersLocked() {
	sort.SliceStable(s.players, func(i, j int) bool {
		if s.players[i].Score != s.players[j].Score {
			return s.players[i].Score > s.players[j].Score
		}
		return s.players[i].JoinOrder < s.players[j].JoinOrder
	})
}

func (s *Session) playersCopyLocked() []models.Player {
	out := make([]models.Player, len(s.players))
	for i, p := range s.players {
		out[i] = *p
	}
	return out
}

func (s *Session) notifyPlayerListLocked() {
	if s.hostConnID == "" {
		return
	}
	s.broadcaster.ToConn(s.hostConnID, Event{Type: EventPlayerList, Data: PlayerListPayload{Players: s.playersCopyLocked()}})
}

func (s *Session) notifyAnsweredCountLocked() {
	if s.hostConnID == "" {
		return
	}
	s.broadcaster.ToConn(s.hostConnID, Event{Type: EventPlayerAnswered, Data: AnsweredPayload{
		TotalAnswered: s.answeredCount,
		TotalPlayers:  len(s.players),
	}})
}
