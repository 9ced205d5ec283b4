package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/quizlive/quizlive/internal/models"
)

// fakeGroupBroadcaster adds room membership tracking on top of the recording
// broadcaster.
type fakeGroupBroadcaster struct {
	*fakeBroadcaster
	mu      sync.Mutex
	members map[string][]string
}

func newFakeGroupBroadcaster() *fakeGroupBroadcaster {
	return &fakeGroupBroadcaster{
		fakeBroadcaster: newFakeBroadcaster(),
		members:         make(map[string][]string),
	}
}

func (f *fakeGroupBroadcaster) JoinRoom(joinCode, connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[joinCode] = append(f.members[joinCode], connID)
}

func (f *fakeGroupBroadcaster) roomMembers(joinCode string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.members[joinCode]...)
}

type fakeSnapshotSource struct {
	snapshots map[uuid.UUID]*models.QuizSnapshot
	err       error
}

func (f *fakeSnapshotSource) FetchSnapshot(ctx context.Context, quizID uuid.UUID) (*models.QuizSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	snap, ok := f.snapshots[quizID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return snap, nil
}

type fakeResultSink struct {
	mu      sync.Mutex
	results []models.GameResult
	saved   chan struct{}
}

func newFakeResultSink() *fakeResultSink {
	return &fakeResultSink{saved: make(chan struct{}, 8)}
}

func (f *fakeResultSink) SaveResult(ctx context.Context, result models.GameResult) error {
	f.mu.Lock()
	f.results = append(f.results, result)
	f.mu.Unlock()
	f.saved <- struct{}{}
	return nil
}

func newTestEngine(t *testing.T, quizID uuid.UUID) (*Engine, *fakeGroupBroadcaster, *fakeResultSink) {
	t.Helper()
	fb := newFakeGroupBroadcaster()
	snap := testQuiz(1)
	snap.QuizID = quizID
	sink := newFakeResultSink()
	e := NewEngine(
		fb,
		&fakeSnapshotSource{snapshots: map[uuid.UUID]*models.QuizSnapshot{quizID: &snap}},
		sink,
		nil,
		clockwork.NewFakeClock(),
		DefaultConfig(),
	)
	return e, fb, sink
}

func createdPin(t *testing.T, fb *fakeGroupBroadcaster, connID string) string {
	t.Helper()
	events := fb.connEvents(connID, EventGameCreated)
	if len(events) != 1 {
		t.Fatalf("host got %d created events, want 1", len(events))
	}
	return events[0].Data.(CreatedPayload).Pin
}

func TestEngineCreateRoom(t *testing.T) {
	quizID := uuid.New()
	e, fb, _ := newTestEngine(t, quizID)
	ctx := context.Background()

	if err := e.CreateRoom(ctx, "conn-h", "", quizID); err != ErrNotHost {
		t.Fatalf("anonymous create error = %v, want %v", err, ErrNotHost)
	}
	if err := e.CreateRoom(ctx, "conn-h", "host-1", quizID); err != nil {
		t.Fatalf("create: %v", err)
	}

	pin := createdPin(t, fb, "conn-h")
	if _, ok := e.Registry().Get(pin); !ok {
		t.Fatalf("no session registered under pin %s", pin)
	}
	if members := fb.roomMembers(pin); len(members) != 1 || members[0] != "conn-h" {
		t.Fatalf("room members = %v, want host connection only", members)
	}
}

func TestEngineCreateRoomEmptyQuiz(t *testing.T) {
	quizID := uuid.New()
	e, _, _ := newTestEngine(t, quizID)

	empty := uuid.New()
	src := &fakeSnapshotSource{snapshots: map[uuid.UUID]*models.QuizSnapshot{
		empty: {QuizID: empty, Title: "empty"},
	}}
	e.quizzes = src

	if err := e.CreateRoom(context.Background(), "conn-h", "host-1", empty); err != ErrEmptyQuiz {
		t.Fatalf("empty quiz create error = %v, want %v", err, ErrEmptyQuiz)
	}
	if e.Registry().Len() != 0 {
		t.Fatal("session registered despite rejected create")
	}
}

func TestEngineFullFlow(t *testing.T) {
	quizID := uuid.New()
	e, fb, sink := newTestEngine(t, quizID)
	ctx := context.Background()

	if err := e.CreateRoom(ctx, "conn-h", "host-1", quizID); err != nil {
		t.Fatalf("create: %v", err)
	}
	pin := createdPin(t, fb, "conn-h")

	if err := e.JoinRoom("conn-a", pin, "alice", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := e.JoinRoom("conn-a", "000000", "alice", ""); err != ErrRoomNotFound {
		t.Fatalf("bad pin join error = %v, want %v", err, ErrRoomNotFound)
	}

	// Only the host's connection may start.
	if err := e.StartGame(ctx, "conn-a", pin); err != ErrNotHost {
		t.Fatalf("player start error = %v, want %v", err, ErrNotHost)
	}
	if err := e.StartGame(ctx, "conn-h", pin); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Hosts cannot answer their own questions.
	if err := e.SubmitAnswer("conn-h", pin, 1, 1); err != ErrUnknownParticipant {
		t.Fatalf("host answer error = %v, want %v", err, ErrUnknownParticipant)
	}
	if err := e.SubmitAnswer("conn-a", pin, 1, 5); err != nil {
		t.Fatalf("answer: %v", err)
	}

	// Single player answered the single question: leaderboard, then the fake
	// clock drives the game to its end.
	s, _ := e.Registry().Get(pin)
	if s.Phase() != PhaseLeaderboard {
		t.Fatalf("phase = %s, want %s", s.Phase(), PhaseLeaderboard)
	}
	e.clock.(*clockwork.FakeClock).Advance(3 * time.Second)

	select {
	case <-sink.saved:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result persistence")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.results) != 1 {
		t.Fatalf("persisted %d results, want 1", len(sink.results))
	}
	result := sink.results[0]
	if result.QuizID != quizID || result.JoinCode != pin || result.HostID != "host-1" {
		t.Fatalf("unexpected result header: %+v", result)
	}
	if len(result.Results) != 1 || result.Results[0].Name != "alice" || result.Results[0].Score != 667 {
		t.Fatalf("unexpected final scores: %+v", result.Results)
	}

	// The finished session is evicted; its pin is free for reuse.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.Registry().Len() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("finished session never evicted from registry")
}

func TestEngineDisconnectUnknownConnection(t *testing.T) {
	e, _, _ := newTestEngine(t, uuid.New())
	// Must not panic or touch any session.
	e.Disconnect("never-seen")
}

func TestEngineRejoinFlowsRebindRoom(t *testing.T) {
	quizID := uuid.New()
	e, fb, _ := newTestEngine(t, quizID)
	ctx := context.Background()

	if err := e.CreateRoom(ctx, "conn-h", "host-1", quizID); err != nil {
		t.Fatalf("create: %v", err)
	}
	pin := createdPin(t, fb, "conn-h")
	if err := e.JoinRoom("conn-a", pin, "alice", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := e.StartGame(ctx, "conn-h", pin); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Mid-game drops keep the participant; new connections rebind.
	e.Disconnect("conn-a")
	if err := e.RejoinPlayer("conn-a2", pin, "alice", "", false); err != nil {
		t.Fatalf("player rejoin: %v", err)
	}
	e.Disconnect("conn-h")
	if err := e.RejoinHost("conn-h2", pin, "host-1", true); err != nil {
		t.Fatalf("host rejoin: %v", err)
	}

	members := fb.roomMembers(pin)
	found := map[string]bool{}
	for _, m := range members {
		found[m] = true
	}
	if !found["conn-a2"] || !found["conn-h2"] {
		t.Fatalf("rejoined connections missing from room: %v", members)
	}

	// The rebound player connection acts with alice's identity.
	if err := e.SubmitAnswer("conn-a2", pin, 1, 2); err != nil {
		t.Fatalf("answer from rebound connection: %v", err)
	}
}
