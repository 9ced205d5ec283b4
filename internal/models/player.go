package models

// Identity is the durable key used to recognize a participant across
// reconnects. Exactly one of UserID or GuestName is set.
type Identity struct {
	UserID    string `json:"user_id,omitempty"`
	GuestName string `json:"guest_name,omitempty"`
}

// IsZero reports whether no identity is present.
func (id Identity) IsZero() bool {
	return id.UserID == "" && id.GuestName == ""
}

// Matches reports whether two identities refer to the same participant.
// Authenticated ids win over guest names.
func (id Identity) Matches(other Identity) bool {
	if id.UserID != "" || other.UserID != "" {
		return id.UserID != "" && id.UserID == other.UserID
	}
	return id.GuestName != "" && id.GuestName == other.GuestName
}

// Player is one participant in a live session.
type Player struct {
	Identity             Identity `json:"identity"`
	Name                 string   `json:"name"`
	ConnectionID         string   `json:"-"`
	Score                int      `json:"score"`
	AnsweredThisQuestion bool     `json:"answered_this_question"`
	LastAnswerCorrect    bool     `json:"last_answer_correct"`
	Connected            bool     `json:"connected"`
	JoinOrder            int      `json:"-"`
}
