package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quizlive/quizlive/internal/game"
)

// Command types accepted from clients. Host commands carry the caller's
// authenticated identity implicitly through the connection.
const (
	CmdHostCreate        = "host:create"
	CmdHostStartGame     = "host:start_game"
	CmdHostRejoin        = "host:rejoin"
	CmdHostRejoinGame    = "host:rejoin_game"
	CmdPlayerJoin        = "player:join"
	CmdPlayerAnswer      = "player:answer"
	CmdPlayerRejoinLobby = "player:rejoin_lobby"
	CmdPlayerRejoinGame  = "player:rejoin_game"
)

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type createCommand struct {
	QuizID string `json:"quizId"`
}

type pinCommand struct {
	Pin string `json:"pin"`
}

type joinCommand struct {
	Pin  string `json:"pin"`
	Name string `json:"name"`
}

type answerCommand struct {
	Pin         string  `json:"pin"`
	AnswerIndex int     `json:"answerIndex"`
	TimeTaken   float64 `json:"timeTaken"`
}

// Dispatcher decodes inbound frames and routes them to engine operations.
// All rejections go back to the sending connection only; nothing a client
// sends can produce a room-wide error.
type Dispatcher struct {
	engine *game.Engine
}

func NewDispatcher(engine *game.Engine) *Dispatcher {
	return &Dispatcher{engine: engine}
}

// Dispatch handles one frame from a connection's read pump.
func (d *Dispatcher) Dispatch(conn *Connection, raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Warn().Err(err).Str("connection_id", conn.ID).Msg("malformed frame")
		d.sendError(conn, errors.New("malformed message"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch msg.Type {
	case CmdHostCreate:
		var cmd createCommand
		if err = json.Unmarshal(msg.Data, &cmd); err == nil {
			var quizID uuid.UUID
			quizID, err = uuid.Parse(cmd.QuizID)
			if err == nil {
				err = d.engine.CreateRoom(ctx, conn.ID, conn.UserID, quizID)
			}
		}
	case CmdHostStartGame:
		var cmd pinCommand
		if err = json.Unmarshal(msg.Data, &cmd); err == nil {
			err = d.engine.StartGame(ctx, conn.ID, cmd.Pin)
		}
	case CmdHostRejoin:
		var cmd pinCommand
		if err = json.Unmarshal(msg.Data, &cmd); err == nil {
			err = d.engine.RejoinHost(conn.ID, cmd.Pin, conn.UserID, false)
		}
	case CmdHostRejoinGame:
		var cmd pinCommand
		if err = json.Unmarshal(msg.Data, &cmd); err == nil {
			err = d.engine.RejoinHost(conn.ID, cmd.Pin, conn.UserID, true)
		}
	case CmdPlayerJoin:
		var cmd joinCommand
		if err = json.Unmarshal(msg.Data, &cmd); err == nil {
			err = d.engine.JoinRoom(conn.ID, cmd.Pin, cmd.Name, conn.UserID)
		}
	case CmdPlayerAnswer:
		var cmd answerCommand
		if err = json.Unmarshal(msg.Data, &cmd); err == nil {
			err = d.engine.SubmitAnswer(conn.ID, cmd.Pin, cmd.AnswerIndex, cmd.TimeTaken)
		}
	case CmdPlayerRejoinLobby:
		var cmd joinCommand
		if err = json.Unmarshal(msg.Data, &cmd); err == nil {
			err = d.engine.RejoinPlayer(conn.ID, cmd.Pin, cmd.Name, conn.UserID, true)
		}
	case CmdPlayerRejoinGame:
		var cmd joinCommand
		if err = json.Unmarshal(msg.Data, &cmd); err == nil {
			err = d.engine.RejoinPlayer(conn.ID, cmd.Pin, cmd.Name, conn.UserID, false)
		}
	default:
		log.Warn().Str("connection_id", conn.ID).Str("type", msg.Type).Msg("unknown command type")
		return
	}

	if err != nil {
		log.Debug().Err(err).
			Str("connection_id", conn.ID).
			Str("type", msg.Type).
			Msg("command rejected")
		d.sendError(conn, err)
	}
}

// Disconnect is called from the read pump when a connection drops.
func (d *Dispatcher) Disconnect(conn *Connection) {
	d.engine.Disconnect(conn.ID)
}

func (d *Dispatcher) sendError(conn *Connection, err error) {
	ev := game.Event{Type: game.EventErrorGeneric, Data: game.ErrorPayload{Message: err.Error()}}
	switch {
	case errors.Is(err, game.ErrRoomNotFound):
		ev = game.Event{Type: game.EventErrorNotFound, Data: game.ErrorPayload{Message: err.Error()}}
	case errors.Is(err, game.ErrGameAlreadyStarted):
		ev = game.Event{Type: game.EventErrorGameStarted, Data: game.ErrorPayload{Message: err.Error()}}
	}
	conn.manager.ToConn(conn.ID, ev)
}
