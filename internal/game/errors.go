package game

import "errors"

// Sentinel errors for rejected actions. Each is handled at the point of the
// offending action: session state is left unchanged and a scoped error event
// goes back to the originating connection only.
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrInvalidIdentity     = errors.New("participant identity is required")
	ErrNotHost             = errors.New("caller is not the session host")
	ErrGameAlreadyStarted  = errors.New("game already started")
	ErrUnknownParticipant  = errors.New("no matching participant in session")
	ErrNotAcceptingAnswers = errors.New("session is not accepting answers")
	ErrEmptyQuiz           = errors.New("quiz must have at least one question")
)
