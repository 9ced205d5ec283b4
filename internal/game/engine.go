package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/quizlive/quizlive/internal/models"
)

// SnapshotSource supplies the immutable question list at session creation.
// This is the quiz-authoring collaborator; the fetch is the only async
// boundary on the create path and completes before any session state exists.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, quizID uuid.UUID) (*models.QuizSnapshot, error)
}

// ResultSink durably records the final roster and scores. Called after the
// end-of-game broadcast; a failure cannot be surfaced to clients.
type ResultSink interface {
	SaveResult(ctx context.Context, result models.GameResult) error
}

// LifecyclePublisher emits session lifecycle events for observability.
// Best-effort: errors are logged by the caller and swallowed.
type LifecyclePublisher interface {
	Publish(ctx context.Context, eventType, joinCode string, payload any) error
}

// Engine ties the registry, binder and collaborators together and exposes
// the inbound operations the gateway dispatches to. Broadcast group
// membership is managed here so reconnects rebind in one place.
type Engine struct {
	registry    *Registry
	binder      *Binder
	broadcaster GroupBroadcaster
	quizzes     SnapshotSource
	results     ResultSink
	publisher   LifecyclePublisher // may be nil
	clock       clockwork.Clock
	cfg         Config
}

// GroupBroadcaster is a Broadcaster that also manages broadcast group
// membership keyed by join code.
type GroupBroadcaster interface {
	Broadcaster
	JoinRoom(joinCode, connID string)
}

func NewEngine(b GroupBroadcaster, quizzes SnapshotSource, results ResultSink, publisher LifecyclePublisher, clock clockwork.Clock, cfg Config) *Engine {
	return &Engine{
		registry:    NewRegistry(),
		binder:      NewBinder(),
		broadcaster: b,
		quizzes:     quizzes,
		results:     results,
		publisher:   publisher,
		clock:       clock,
		cfg:         cfg,
	}
}

// Registry exposes the live session store, for sweeps and introspection.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// CreateRoom fetches a quiz snapshot and opens a new session in the lobby
// phase. The snapshot fetch happens first so no half-created session is ever
// observable.
func (e *Engine) CreateRoom(ctx context.Context, connID, hostID string, quizID uuid.UUID) error {
	if hostID == "" {
		return ErrNotHost
	}

	snap, err := e.quizzes.FetchSnapshot(ctx, quizID)
	if err != nil {
		return err
	}
	if len(snap.Questions) == 0 {
		return ErrEmptyQuiz
	}

	s := NewSession(*snap, hostID, connID, e.clock, e.broadcaster, e.cfg, e.finishGame)
	code := e.registry.Add(s)

	e.binder.Bind(connID, Binding{JoinCode: code, Identity: models.Identity{UserID: hostID}, IsHost: true})
	e.broadcaster.JoinRoom(code, connID)
	e.broadcaster.ToConn(connID, Event{Type: EventGameCreated, Data: CreatedPayload{Pin: code}})

	log.Info().Str("join_code", code).Str("host_id", hostID).Str("quiz", snap.Title).Msg("room created")
	e.publish(ctx, "SessionCreated", code, map[string]any{"quizId": quizID.String(), "hostId": hostID})
	return nil
}

// JoinRoom adds a player to a lobby. An empty userID joins as a guest keyed
// by display name.
func (e *Engine) JoinRoom(connID, code, name, userID string) error {
	s, ok := e.registry.Get(code)
	if !ok {
		return ErrRoomNotFound
	}
	identity := models.Identity{UserID: userID}
	if userID == "" {
		identity.GuestName = name
	}
	if err := s.Join(identity, name, connID); err != nil {
		return err
	}
	e.binder.Bind(connID, Binding{JoinCode: code, Identity: identity})
	e.broadcaster.JoinRoom(code, connID)
	return nil
}

// StartGame begins the question rounds. The caller is resolved through the
// binder; only the connection bound to the host identity may start.
func (e *Engine) StartGame(ctx context.Context, connID, code string) error {
	s, ok := e.registry.Get(code)
	if !ok {
		return ErrRoomNotFound
	}
	binding, ok := e.binder.Lookup(connID)
	if !ok || !binding.IsHost {
		return ErrNotHost
	}
	if err := s.Start(binding.Identity.UserID); err != nil {
		return err
	}
	e.publish(ctx, "SessionStarted", code, map[string]any{"players": len(s.Players())})
	return nil
}

// SubmitAnswer records one player's answer for the current question.
func (e *Engine) SubmitAnswer(connID, code string, optionIndex int, elapsedSec float64) error {
	s, ok := e.registry.Get(code)
	if !ok {
		return ErrRoomNotFound
	}
	binding, ok := e.binder.Lookup(connID)
	if !ok || binding.IsHost {
		return ErrUnknownParticipant
	}
	return s.Answer(binding.Identity, optionIndex, elapsedSec)
}

// RejoinHost rebinds a returning host to a new connection and resyncs the
// screen they are on.
func (e *Engine) RejoinHost(connID, code, hostID string, gameScreen bool) error {
	s, ok := e.registry.Get(code)
	if !ok {
		return ErrRoomNotFound
	}
	if err := s.RejoinHost(hostID, connID, gameScreen); err != nil {
		return err
	}
	e.binder.Bind(connID, Binding{JoinCode: code, Identity: models.Identity{UserID: hostID}, IsHost: true})
	e.broadcaster.JoinRoom(code, connID)
	return nil
}

// RejoinPlayer rebinds a returning player (by authenticated id, falling back
// to remembered guest name) and resyncs their in-flight state.
func (e *Engine) RejoinPlayer(connID, code, name, userID string, lobbyScreen bool) error {
	s, ok := e.registry.Get(code)
	if !ok {
		return ErrRoomNotFound
	}
	identity := models.Identity{UserID: userID}
	if userID == "" {
		identity.GuestName = name
	}
	if err := s.RejoinPlayer(identity, connID, lobbyScreen); err != nil {
		return err
	}
	e.binder.Bind(connID, Binding{JoinCode: code, Identity: identity})
	e.broadcaster.JoinRoom(code, connID)
	return nil
}

// Disconnect routes a dropped connection to its session and clears the
// binding. Unknown connections are ignored.
func (e *Engine) Disconnect(connID string) {
	binding, ok := e.binder.Lookup(connID)
	if !ok {
		return
	}
	e.binder.Unbind(connID)
	if s, ok := e.registry.Get(binding.JoinCode); ok {
		s.Disconnect(connID)
	}
}

// finishGame is the persistence handoff. The game:over broadcast has already
// gone out by the time this runs, so failures are logged and swallowed.
func (e *Engine) finishGame(result models.GameResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.results.SaveResult(ctx, result); err != nil {
		log.Error().Err(err).
			Str("join_code", result.JoinCode).
			Str("quiz_id", result.QuizID.String()).
			Msg("failed to persist game result")
	}
	e.publish(ctx, "SessionCompleted", result.JoinCode, result)
	e.registry.Remove(result.JoinCode)
}

func (e *Engine) publish(ctx context.Context, eventType, code string, payload any) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, eventType, code, payload); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Str("join_code", code).Msg("failed to publish lifecycle event")
	}
}
