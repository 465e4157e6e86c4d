package opportunity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kalambet/agentmesh/internal/storage"
)

type sideEffects struct {
	mu        sync.Mutex
	accepted  []string
	triggered []string
	announced []string
}

func (s *sideEffects) NotifyAccepted(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepted = append(s.accepted, id)
}

func (s *sideEffects) Trigger(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggered = append(s.triggered, code)
}

func (s *sideEffects) AnnounceRoomChanged(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announced = append(s.announced, code)
}

func setup(t *testing.T, status Status) (*Responder, *storage.Store, *sideEffects) {
	t.Helper()
	ctx := context.Background()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	for _, id := range []string{"alice", "bob", "carol"} {
		if _, err := s.CreatePerson(ctx, storage.Person{ID: id, Name: id}); err != nil {
			t.Fatal(err)
		}
	}
	room, err := s.CreateRoom(ctx, storage.Room{ID: "r1", Code: "ABC123", CreatedBy: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.JoinRoom(ctx, room.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateOpportunity(ctx, storage.Opportunity{
		ID: "opp", RoomID: room.ID, PersonA: "alice", PersonB: "bob", Status: string(status), Score: 0.8,
	}); err != nil {
		t.Fatal(err)
	}

	fx := &sideEffects{}
	return NewResponder(s, fx, fx, fx), s, fx
}

func TestRespond_BothAccept(t *testing.T) {
	r, _, fx := setup(t, StatusProposed)
	ctx := context.Background()

	o, err := r.Respond(ctx, "opp", "alice", "accept", "  Happy to chat  ")
	if err != nil {
		t.Fatalf("Respond(alice): %v", err)
	}
	if o.Status != string(StatusProposed) || o.DecisionA != "ACCEPT" || o.AnswerA != "Happy to chat" {
		t.Errorf("after first accept: %+v", o)
	}
	if o.DecisionB != "" || o.AnswerB != "" {
		t.Errorf("B side touched: %+v", o)
	}
	if len(fx.accepted) != 0 {
		t.Errorf("NotifyAccepted called early: %v", fx.accepted)
	}

	o, err = r.Respond(ctx, "opp", "bob", "ACCEPT", "")
	if err != nil {
		t.Fatalf("Respond(bob): %v", err)
	}
	if o.Status != string(StatusAccepted) {
		t.Errorf("status = %s, want ACCEPTED", o.Status)
	}
	if len(fx.accepted) != 1 || fx.accepted[0] != "opp" {
		t.Errorf("NotifyAccepted calls = %v", fx.accepted)
	}
	if len(fx.triggered) != 2 || fx.triggered[0] != "ABC123" || len(fx.announced) != 2 {
		t.Errorf("triggered = %v, announced = %v", fx.triggered, fx.announced)
	}
}

func TestRespond_DeclineIsTerminal(t *testing.T) {
	r, _, _ := setup(t, StatusProposed)
	ctx := context.Background()

	o, err := r.Respond(ctx, "opp", "bob", "decline", "not now")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if o.Status != string(StatusDeclined) {
		t.Fatalf("status = %s, want DECLINED", o.Status)
	}

	o, err = r.Respond(ctx, "opp", "bob", "accept", "")
	if err != nil {
		t.Fatalf("Respond after decline: %v", err)
	}
	o, err = r.Respond(ctx, "opp", "alice", "accept", "")
	if err != nil {
		t.Fatalf("Respond(alice): %v", err)
	}
	if o.Status != string(StatusDeclined) {
		t.Errorf("terminal status changed to %s", o.Status)
	}
	if o.DecisionB != "ACCEPT" || o.AnswerB != "not now" {
		t.Errorf("decision not recorded after terminal: %+v", o)
	}
}

func TestRespond_AcceptedStaysAccepted(t *testing.T) {
	r, _, fx := setup(t, StatusProposed)
	ctx := context.Background()
	r.Respond(ctx, "opp", "alice", "accept", "")
	r.Respond(ctx, "opp", "bob", "accept", "")

	o, err := r.Respond(ctx, "opp", "alice", "decline", "")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if o.Status != string(StatusAccepted) {
		t.Errorf("status = %s, want ACCEPTED", o.Status)
	}
	if len(fx.accepted) != 2 {
		t.Errorf("NotifyAccepted calls = %d, want one per response while accepted", len(fx.accepted))
	}
}

func TestRespond_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		id       string
		actor    string
		decision string
		want     error
	}{
		{"missing", StatusProposed, "nope", "alice", "accept", ErrNotFound},
		{"outsider", StatusProposed, "opp", "carol", "accept", ErrForbidden},
		{"bad decision", StatusProposed, "opp", "alice", "maybe", ErrInvalidDecision},
		{"discarded", StatusDiscarded, "opp", "alice", "accept", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, s, fx := setup(t, tt.status)
			_, err := r.Respond(context.Background(), tt.id, tt.actor, tt.decision, "x")
			if !errors.Is(err, tt.want) {
				t.Fatalf("Respond() = %v, want %v", err, tt.want)
			}
			if len(fx.triggered) != 0 || len(fx.announced) != 0 {
				t.Errorf("failed response had side effects: %+v", fx)
			}
			o, _ := s.GetOpportunity(context.Background(), "opp")
			if o.DecisionA != "" || o.AnswerA != "" {
				t.Errorf("failed response wrote fields: %+v", o)
			}
		})
	}
}

func TestRespond_AnswerClipped(t *testing.T) {
	r, _, _ := setup(t, StatusProposed)
	long := strings.Repeat("é", MaxAnswerLen+50)
	o, err := r.Respond(context.Background(), "opp", "alice", "accept", long)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if n := len([]rune(o.AnswerA)); n != MaxAnswerLen {
		t.Errorf("answer length = %d runes, want %d", n, MaxAnswerLen)
	}
}

func TestSide(t *testing.T) {
	o := storage.Opportunity{PersonA: "a", PersonB: "b"}
	if s, _ := Side(o, "b"); s != storage.SideB {
		t.Errorf("Side(b) = %s", s)
	}
	if _, err := Side(o, "c"); !errors.Is(err, ErrForbidden) {
		t.Errorf("Side(c) = %v, want ErrForbidden", err)
	}
}
