package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/quizlive/quizlive/internal/game"
	"github.com/quizlive/quizlive/internal/models"
)

type stubQuizSource struct {
	snapshots map[uuid.UUID]*models.QuizSnapshot
}

func (s *stubQuizSource) FetchSnapshot(ctx context.Context, quizID uuid.UUID) (*models.QuizSnapshot, error) {
	snap, ok := s.snapshots[quizID]
	if !ok {
		return nil, fmt.Errorf("quiz %s not found", quizID)
	}
	return snap, nil
}

type stubResultSink struct{}

func (stubResultSink) SaveResult(ctx context.Context, result models.GameResult) error { return nil }

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newTestGateway(t *testing.T, quizID uuid.UUID) (*ConnectionManager, *game.Engine, func()) {
	t.Helper()
	cm := NewConnectionManager(DefaultConnectionConfig())
	snap := &models.QuizSnapshot{
		QuizID: quizID,
		Title:  "test quiz",
		Questions: []models.Question{
			{Title: "q1", Options: []string{"a", "b"}, CorrectOptionIndex: 0},
		},
	}
	engine := game.NewEngine(
		cm,
		&stubQuizSource{snapshots: map[uuid.UUID]*models.QuizSnapshot{quizID: snap}},
		stubResultSink{},
		nil,
		clockwork.NewFakeClock(),
		game.DefaultConfig(),
	)
	cm.SetDispatcher(NewDispatcher(engine))

	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)
	return cm, engine, cancel
}

// addTestConnection registers a connection with no real socket behind it;
// frames land in its Send channel.
func addTestConnection(cm *ConnectionManager, id, userID string) *Connection {
	conn := &Connection{
		ID:      id,
		UserID:  userID,
		Send:    make(chan []byte, 16),
		manager: cm,
	}
	cm.mu.Lock()
	cm.conns[id] = conn
	cm.mu.Unlock()
	return conn
}

func recvFrame(t *testing.T, conn *Connection) frame {
	t.Helper()
	select {
	case raw := <-conn.Send:
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("undecodable frame %s: %v", raw, err)
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return frame{}
	}
}

func sendCommand(t *testing.T, cm *ConnectionManager, conn *Connection, cmdType string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal command data: %v", err)
	}
	raw, err := json.Marshal(map[string]any{"type": cmdType, "data": json.RawMessage(payload)})
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	cm.dispatcher.Dispatch(conn, raw)
}

func TestDispatchCreateAndJoin(t *testing.T) {
	quizID := uuid.New()
	cm, engine, stop := newTestGateway(t, quizID)
	defer stop()

	host := addTestConnection(cm, "conn-h", "host-1")
	sendCommand(t, cm, host, CmdHostCreate, map[string]string{"quizId": quizID.String()})

	created := recvFrame(t, host)
	if created.Type != string(game.EventGameCreated) {
		t.Fatalf("frame type = %s, want %s", created.Type, game.EventGameCreated)
	}
	var pinData struct {
		Pin string `json:"pin"`
	}
	if err := json.Unmarshal(created.Data, &pinData); err != nil {
		t.Fatalf("decode created payload: %v", err)
	}
	if _, ok := engine.Registry().Get(pinData.Pin); !ok {
		t.Fatalf("no session behind pin %s", pinData.Pin)
	}

	player := addTestConnection(cm, "conn-p", "")
	sendCommand(t, cm, player, CmdPlayerJoin, map[string]string{"pin": pinData.Pin, "name": "alice"})

	joined := recvFrame(t, player)
	if joined.Type != string(game.EventPlayerJoined) {
		t.Fatalf("frame type = %s, want %s", joined.Type, game.EventPlayerJoined)
	}
	// The host's roster view updates too.
	roster := recvFrame(t, host)
	if roster.Type != string(game.EventPlayerList) {
		t.Fatalf("frame type = %s, want %s", roster.Type, game.EventPlayerList)
	}
}

func TestDispatchErrorMapping(t *testing.T) {
	cm, _, stop := newTestGateway(t, uuid.New())
	defer stop()

	conn := addTestConnection(cm, "conn-1", "")

	sendCommand(t, cm, conn, CmdPlayerJoin, map[string]string{"pin": "000000", "name": "alice"})
	if f := recvFrame(t, conn); f.Type != string(game.EventErrorNotFound) {
		t.Fatalf("unknown pin frame type = %s, want %s", f.Type, game.EventErrorNotFound)
	}

	cm.dispatcher.Dispatch(conn, []byte("{not json"))
	if f := recvFrame(t, conn); f.Type != string(game.EventErrorGeneric) {
		t.Fatalf("malformed frame type = %s, want %s", f.Type, game.EventErrorGeneric)
	}
}

func TestDispatchStartRequiresHostIdentity(t *testing.T) {
	quizID := uuid.New()
	cm, _, stop := newTestGateway(t, quizID)
	defer stop()

	host := addTestConnection(cm, "conn-h", "host-1")
	sendCommand(t, cm, host, CmdHostCreate, map[string]string{"quizId": quizID.String()})
	created := recvFrame(t, host)
	var pinData struct {
		Pin string `json:"pin"`
	}
	if err := json.Unmarshal(created.Data, &pinData); err != nil {
		t.Fatalf("decode created payload: %v", err)
	}

	player := addTestConnection(cm, "conn-p", "")
	sendCommand(t, cm, player, CmdPlayerJoin, map[string]string{"pin": pinData.Pin, "name": "alice"})
	recvFrame(t, player) // joined ack

	sendCommand(t, cm, player, CmdHostStartGame, map[string]string{"pin": pinData.Pin})
	if f := recvFrame(t, player); f.Type != string(game.EventErrorGeneric) {
		t.Fatalf("player start frame type = %s, want %s", f.Type, game.EventErrorGeneric)
	}
}

func TestDispatchUnknownCommandIgnored(t *testing.T) {
	cm, _, stop := newTestGateway(t, uuid.New())
	defer stop()

	conn := addTestConnection(cm, "conn-1", "")
	sendCommand(t, cm, conn, "nonsense:command", map[string]string{})

	select {
	case raw := <-conn.Send:
		t.Fatalf("unexpected frame for unknown command: %s", raw)
	case <-time.After(100 * time.Millisecond):
	}
}
