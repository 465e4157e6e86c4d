package rooms

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/agentmesh/internal/storage"
)

type triggers struct {
	mu    sync.Mutex
	rooms []string
}

func (t *triggers) Trigger(code string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rooms = append(t.rooms, code)
}

func newService(t *testing.T) (*Service, *storage.Store, *triggers) {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	tr := &triggers{}
	return NewService(s, tr), s, tr
}

func mustPerson(t *testing.T, svc *Service, name string) storage.Person {
	t.Helper()
	p, err := svc.CreatePerson(context.Background(), name, strings.ToLower(name)+"@example.com")
	if err != nil {
		t.Fatalf("CreatePerson(%s): %v", name, err)
	}
	return p
}

func str(s string) *string { return &s }

func TestCreatePerson_Validation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.CreatePerson(ctx, " ", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank person: %v", err)
	}
	if _, err := svc.CreatePerson(ctx, "Ada", "not-an-email"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad email: %v", err)
	}
	mustPerson(t, svc, "Ada")
	if _, err := svc.CreatePerson(ctx, "Other Ada", "ADA@example.com"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("duplicate email: %v", err)
	}
	if _, err := svc.CreatePerson(ctx, "No Mail", ""); err != nil {
		t.Errorf("person without email: %v", err)
	}
}

func TestCreateRoom_CodeFormat(t *testing.T) {
	svc, _, _ := newService(t)
	ada := mustPerson(t, svc, "Ada")

	room, err := svc.CreateRoom(context.Background(), ada.ID)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if len(room.Code) != codeLength {
		t.Errorf("code %q has length %d", room.Code, len(room.Code))
	}
	for _, r := range room.Code {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Errorf("code %q contains %q outside the alphabet", room.Code, r)
		}
	}
	st, err := svc.RoomState(context.Background(), room.Code, ada.ID)
	if err != nil {
		t.Fatalf("RoomState: %v", err)
	}
	if len(st.Participants) != 1 || st.Participants[0].ID != ada.ID {
		t.Errorf("creator not first participant: %+v", st.Participants)
	}
}

func TestCreateRoom_RetriesOnCollision(t *testing.T) {
	svc, _, _ := newService(t)
	ada := mustPerson(t, svc, "Ada")

	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	svc.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	if _, err := svc.CreateRoom(context.Background(), ada.ID); err != nil {
		t.Fatal(err)
	}
	room, err := svc.CreateRoom(context.Background(), ada.ID)
	if err != nil {
		t.Fatalf("CreateRoom after collision: %v", err)
	}
	if room.Code != "BBBBBB" {
		t.Errorf("code = %s, want BBBBBB", room.Code)
	}
}

func TestCreateRoom_GivesUp(t *testing.T) {
	svc, _, _ := newService(t)
	ada := mustPerson(t, svc, "Ada")
	calls := 0
	svc.newCode = func() (string, error) { calls++; return "SAME42", nil }

	svc.CreateRoom(context.Background(), ada.ID)
	calls = 0
	if _, err := svc.CreateRoom(context.Background(), ada.ID); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != codeAttempts {
		t.Errorf("attempts = %d, want %d", calls, codeAttempts)
	}
}

func TestJoinRoom(t *testing.T) {
	svc, _, tr := newService(t)
	ctx := context.Background()
	ada, bo, cy := mustPerson(t, svc, "Ada"), mustPerson(t, svc, "Bo"), mustPerson(t, svc, "Cy")
	room, _ := svc.CreateRoom(ctx, ada.ID)

	if _, err := svc.JoinRoom(ctx, strings.ToLower(room.Code), cy.ID); err != nil {
		t.Fatalf("JoinRoom(lowercase): %v", err)
	}
	if _, err := svc.JoinRoom(ctx, room.Code, bo.ID); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if _, err := svc.JoinRoom(ctx, room.Code, cy.ID); err != nil {
		t.Fatalf("JoinRoom twice: %v", err)
	}

	st, _ := svc.RoomState(ctx, room.Code, bo.ID)
	var order []string
	for _, p := range st.Participants {
		order = append(order, p.Name)
	}
	if !reflect.DeepEqual(order, []string{"Ada", "Cy", "Bo"}) {
		t.Errorf("join order = %v", order)
	}
	if len(tr.rooms) != 3 || tr.rooms[0] != room.Code {
		t.Errorf("triggers = %v", tr.rooms)
	}

	tests := []struct {
		code string
		want error
	}{
		{"AB", ErrInvalidCode},
		{strings.Repeat("A", 17), ErrInvalidCode},
		{"ZZZZZZ", ErrNotFound},
	}
	for _, tt := range tests {
		if _, err := svc.JoinRoom(ctx, tt.code, bo.ID); !errors.Is(err, tt.want) {
			t.Errorf("JoinRoom(%q) = %v, want %v", tt.code, err, tt.want)
		}
	}
	if _, err := svc.JoinRoom(ctx, room.Code, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown person joined: %v", err)
	}
}

func TestSaveProfile(t *testing.T) {
	svc, store, tr := newService(t)
	ctx := context.Background()
	ada := mustPerson(t, svc, "Ada")
	r1, _ := svc.CreateRoom(ctx, ada.ID)
	r2, _ := svc.CreateRoom(ctx, ada.ID)

	p, err := svc.SaveProfile(ctx, ada.ID, "", ProfileInput{Headline: str(" Compiler engineer "), Bio: str("Go")})
	if err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if p.Headline != "Compiler engineer" || p.Bio != "Go" {
		t.Errorf("profile = %+v", p)
	}
	if !reflect.DeepEqual(tr.rooms, []string{r1.Code, r2.Code}) {
		t.Errorf("triggers = %v, want all rooms", tr.rooms)
	}

	if err := store.SetEmbedding(ctx, p, []float32{1, 2}); err != nil {
		t.Fatal(err)
	}
	tr.rooms = nil
	p, err = svc.SaveProfile(ctx, ada.ID, r1.Code, ProfileInput{Interests: str("chess")})
	if err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if p.Headline != "Compiler engineer" || p.Interests != "chess" {
		t.Errorf("partial update lost fields: %+v", p)
	}
	if p.Embedding != nil {
		t.Error("embedding kept after text change")
	}
	if !reflect.DeepEqual(tr.rooms, []string{r1.Code}) {
		t.Errorf("triggers = %v, want only %s", tr.rooms, r1.Code)
	}

	tr.rooms = nil
	if _, err := svc.SaveProfile(ctx, ada.ID, r1.Code, ProfileInput{Interests: str("chess")}); err != nil {
		t.Fatal(err)
	}
	if len(tr.rooms) != 0 {
		t.Errorf("unchanged profile triggered %v", tr.rooms)
	}
}

func TestSaveProfile_InvalidRoomCodeSavesNothing(t *testing.T) {
	svc, store, tr := newService(t)
	ctx := context.Background()
	ada := mustPerson(t, svc, "Ada")

	if _, err := svc.SaveProfile(ctx, ada.ID, "x", ProfileInput{Bio: str("Go")}); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("SaveProfile() = %v, want ErrInvalidCode", err)
	}
	p, err := store.GetProfile(ctx, ada.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.HasText() {
		t.Errorf("profile saved despite invalid room code: %+v", p)
	}
	if len(tr.rooms) != 0 {
		t.Errorf("triggers = %v, want none", tr.rooms)
	}

	if _, err := svc.SaveProfile(ctx, ada.ID, " room42 ", ProfileInput{Bio: str("Go")}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if !reflect.DeepEqual(tr.rooms, []string{"ROOM42"}) {
		t.Errorf("triggers = %v, want normalized ROOM42", tr.rooms)
	}
}

func TestSaveProfile_Limits(t *testing.T) {
	svc, _, _ := newService(t)
	ada := mustPerson(t, svc, "Ada")
	tests := []struct {
		name string
		in   ProfileInput
	}{
		{"headline", ProfileInput{Headline: str(strings.Repeat("x", MaxHeadline+1))}},
		{"bio", ProfileInput{Bio: str(strings.Repeat("x", MaxBio+1))}},
		{"interests", ProfileInput{Interests: str(strings.Repeat("x", MaxInterests+1))}},
		{"looking_for", ProfileInput{LookingFor: str(strings.Repeat("x", MaxLookingFor+1))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SaveProfile(context.Background(), ada.ID, "", tt.in)
			if !errors.Is(err, ErrInvalidInput) || !strings.Contains(err.Error(), tt.name) {
				t.Errorf("SaveProfile() = %v, want ErrInvalidInput naming %s", err, tt.name)
			}
		})
	}
	if _, err := svc.SaveProfile(context.Background(), ada.ID, "", ProfileInput{Headline: str(strings.Repeat("é", MaxHeadline))}); err != nil {
		t.Errorf("headline at limit rejected: %v", err)
	}
}

func TestRoomState(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	ada, bo, cy := mustPerson(t, svc, "Ada"), mustPerson(t, svc, "Bo"), mustPerson(t, svc, "Cy")
	room, _ := svc.CreateRoom(ctx, ada.ID)
	svc.JoinRoom(ctx, room.Code, bo.ID)
	svc.JoinRoom(ctx, room.Code, cy.ID)
	svc.SaveProfile(ctx, bo.ID, "", ProfileInput{Headline: str("Designer")})

	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { tick = tick.Add(time.Second); return tick })

	mk := func(id, x, y, status string) {
		a, b := x, y
		if b < a {
			a, b = b, a
		}
		if _, err := store.CreateOpportunity(ctx, storage.Opportunity{ID: id, RoomID: room.ID, PersonA: a, PersonB: b, Status: status}); err != nil {
			t.Fatalf("CreateOpportunity(%s): %v", id, err)
		}
	}
	mk("o1", ada.ID, bo.ID, "PROPOSED")
	mk("o2", ada.ID, cy.ID, "DISCARDED")
	mk("o3", bo.ID, cy.ID, "PROPOSED")

	st, err := svc.RoomState(ctx, strings.ToLower(room.Code), ada.ID)
	if err != nil {
		t.Fatalf("RoomState: %v", err)
	}
	if st.Room.Code != room.Code || st.Me.ID != ada.ID || st.Me.Email != "ada@example.com" {
		t.Errorf("room/me = %+v / %+v", st.Room, st.Me)
	}
	if len(st.Opportunities) != 1 {
		t.Fatalf("opportunities = %+v, want only o1", st.Opportunities)
	}
	ov := st.Opportunities[0]
	if ov.ID != "o1" || ov.Other.ID != bo.ID || ov.Other.Headline != "Designer" {
		t.Errorf("view = %+v", ov)
	}
	wantSide := "A"
	if bo.ID < ada.ID {
		wantSide = "B"
	}
	if string(ov.ViewerSide) != wantSide {
		t.Errorf("viewer side = %s, want %s", ov.ViewerSide, wantSide)
	}

	outsider := mustPerson(t, svc, "Dee")
	if _, err := svc.RoomState(ctx, room.Code, outsider.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("outsider RoomState = %v, want ErrNotFound", err)
	}
	if _, err := svc.TriggerRoom(ctx, room.Code, outsider.ID); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("outsider TriggerRoom = %v, want ErrNotParticipant", err)
	}
}

func TestRandomCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		c, err := randomCode()
		if err != nil {
			t.Fatal(err)
		}
		seen[c] = true
	}
	if len(seen) < 45 {
		t.Errorf("only %d distinct codes out of 50", len(seen))
	}
}

func TestMe(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	ada := mustPerson(t, svc, "Ada")

	me, err := svc.Me(ctx, ada.ID)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if me.Person.ID != ada.ID || me.Rooms == nil || len(me.Rooms) != 0 {
		t.Errorf("Me = %+v", me)
	}

	room, _ := svc.CreateRoom(ctx, ada.ID)
	svc.SaveProfile(ctx, ada.ID, "", ProfileInput{Bio: str("Go")})
	me, _ = svc.Me(ctx, ada.ID)
	if !reflect.DeepEqual(me.Rooms, []string{room.Code}) || me.Profile.Bio != "Go" {
		t.Errorf("Me = %+v", me)
	}

	if _, err := svc.Me(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Me(ghost) = %v, want ErrNotFound", err)
	}
}
