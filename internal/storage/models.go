package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert violates a uniqueness constraint.
var ErrConflict = errors.New("already exists")

// ErrStale is returned when a write was computed from a record that has
// since changed.
var ErrStale = errors.New("record changed since it was read")

type Person struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Profile struct {
	PersonID   string    `json:"person_id"`
	Headline   string    `json:"headline"`
	Bio        string    `json:"bio"`
	Interests  string    `json:"interests"`
	LookingFor string    `json:"looking_for"`
	Embedding  []float32 `json:"-"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasText reports whether any free-text field carries content.
func (p Profile) HasText() bool {
	return p.Headline != "" || p.Bio != "" || p.Interests != "" || p.LookingFor != ""
}

type Room struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is one room participant joined with their person record and
// profile, as loaded for a matchmaking pass.
type Member struct {
	Person   Person
	Profile  Profile
	JoinedAt time.Time
}

type Turn struct {
	Speaker string `json:"speaker"`
	Message string `json:"message"`
}

type Opportunity struct {
	ID         string  `json:"id"`
	RoomID     string  `json:"room_id"`
	PersonA    string  `json:"person_a"`
	PersonB    string  `json:"person_b"`
	Status     string  `json:"status"`
	Score      float64 `json:"score"`
	Rationale  string  `json:"rationale"`
	Transcript []Turn  `json:"transcript"`
	IntroA     string  `json:"intro_a"`
	IntroB     string  `json:"intro_b"`
	QuestionA  string  `json:"question_a"`
	QuestionB  string  `json:"question_b"`
	DecisionA  string  `json:"decision_a"`
	DecisionB  string  `json:"decision_b"`
	AnswerA    string  `json:"answer_a"`
	AnswerB    string  `json:"answer_b"`

	ProposalNotifiedAAt *time.Time `json:"proposal_notified_a_at,omitempty"`
	ProposalNotifiedBAt *time.Time `json:"proposal_notified_b_at,omitempty"`
	AcceptedNotifiedAAt *time.Time `json:"accepted_notified_a_at,omitempty"`
	AcceptedNotifiedBAt *time.Time `json:"accepted_notified_b_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Side identifies one half of an opportunity pair.
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// NotifyEvent names one of the two per-side notification guards.
type NotifyEvent string

const (
	NotifyProposal NotifyEvent = "proposal"
	NotifyAccepted NotifyEvent = "accepted"
)
