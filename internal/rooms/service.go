// Package rooms manages people, rooms, memberships and profiles, and
// assembles the per-viewer room state the UI and CLI render.
package rooms

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kalambet/agentmesh/internal/opportunity"
	"github.com/kalambet/agentmesh/internal/storage"
)

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
	codeAttempts = 5

	minCodeLen = 3
	maxCodeLen = 16

	MaxHeadline   = 140
	MaxBio        = 1200
	MaxInterests  = 800
	MaxLookingFor = 800
	MaxName       = 80
)

var (
	ErrNotFound       = errors.New("not found")
	ErrNotParticipant = errors.New("not a participant of this room")
	ErrInvalidCode    = errors.New("room code must be 3 to 16 characters")
	ErrInvalidInput   = errors.New("invalid input")
)

type Store interface {
	CreatePerson(ctx context.Context, p storage.Person) (storage.Person, error)
	GetPerson(ctx context.Context, id string) (storage.Person, error)
	GetPeople(ctx context.Context, ids ...string) (map[string]storage.Person, error)
	GetProfile(ctx context.Context, personID string) (storage.Profile, error)
	SaveProfile(ctx context.Context, p storage.Profile) (bool, error)
	CreateRoom(ctx context.Context, r storage.Room) (storage.Room, error)
	GetRoomByCode(ctx context.Context, code string) (storage.Room, error)
	RoomsForPerson(ctx context.Context, personID string) ([]string, error)
	JoinRoom(ctx context.Context, roomID, personID string) (bool, error)
	IsParticipant(ctx context.Context, roomID, personID string) (bool, error)
	ListMembers(ctx context.Context, roomID string) ([]storage.Member, error)
	ListOpportunitiesForPerson(ctx context.Context, roomID, personID string, statuses []string) ([]storage.Opportunity, error)
}

// Trigger requests a matchmaking pass for a room.
type Trigger interface {
	Trigger(roomCode string)
}

type Service struct {
	store   Store
	trigger Trigger
	logger  *slog.Logger
	newCode func() (string, error)
}

func NewService(store Store, trigger Trigger) *Service {
	return &Service{store: store, trigger: trigger, logger: slog.Default(), newCode: randomCode}
}

// CreatePerson registers a person. Email is optional but unique when set.
func (s *Service) CreatePerson(ctx context.Context, name, email string) (storage.Person, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" && email == "" {
		return storage.Person{}, fmt.Errorf("%w: name or email is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > MaxName {
		return storage.Person{}, fmt.Errorf("%w: name exceeds %d characters", ErrInvalidInput, MaxName)
	}
	if email != "" && !strings.Contains(email, "@") {
		return storage.Person{}, fmt.Errorf("%w: email %q is not an address", ErrInvalidInput, email)
	}
	p, err := s.store.CreatePerson(ctx, storage.Person{ID: uuid.NewString(), Name: name, Email: email})
	if errors.Is(err, storage.ErrConflict) {
		return storage.Person{}, fmt.Errorf("%w: email already registered", ErrInvalidInput)
	}
	return p, err
}

func (s *Service) GetPerson(ctx context.Context, id string) (storage.Person, error) {
	p, err := s.store.GetPerson(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Person{}, ErrNotFound
	}
	return p, err
}

// CreateRoom mints a fresh room code and joins the creator as the first
// participant.
func (s *Service) CreateRoom(ctx context.Context, creatorID string) (storage.Room, error) {
	if _, err := s.GetPerson(ctx, creatorID); err != nil {
		return storage.Room{}, err
	}
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return storage.Room{}, fmt.Errorf("generating room code: %w", err)
		}
		room, err := s.store.CreateRoom(ctx, storage.Room{ID: uuid.NewString(), Code: code, CreatedBy: creatorID})
		if errors.Is(err, storage.ErrConflict) {
			s.logger.Debug("room code collision", "code", code, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return storage.Room{}, err
		}
		s.logger.Info("room created", "room", room.Code, "creator", creatorID)
		return room, nil
	}
	return storage.Room{}, fmt.Errorf("no free room code after %d attempts", codeAttempts)
}

// NormalizeCode upper-cases and validates a user-typed room code.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if n := len(code); n < minCodeLen || n > maxCodeLen {
		return "", ErrInvalidCode
	}
	return code, nil
}

// JoinRoom adds the person to the room. Joining twice keeps the original
// position in the join order.
func (s *Service) JoinRoom(ctx context.Context, code, personID string) (storage.Room, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return storage.Room{}, err
	}
	if _, err := s.GetPerson(ctx, personID); err != nil {
		return storage.Room{}, err
	}
	room, err := s.room(ctx, code)
	if err != nil {
		return storage.Room{}, err
	}
	added, err := s.store.JoinRoom(ctx, room.ID, personID)
	if err != nil {
		return storage.Room{}, err
	}
	if added {
		s.logger.Info("person joined room", "room", room.Code, "person", personID)
	}
	s.trigger.Trigger(room.Code)
	return room, nil
}

// ProfileInput carries a profile edit. Nil fields are left unchanged.
type ProfileInput struct {
	Headline   *string `json:"headline,omitempty"`
	Bio        *string `json:"bio,omitempty"`
	Interests  *string `json:"interests,omitempty"`
	LookingFor *string `json:"looking_for,omitempty"`
}

// SaveProfile applies the edit. When the text changed, matchmaking is
// triggered for roomCode, or for every room the person belongs to when
// roomCode is empty.
func (s *Service) SaveProfile(ctx context.Context, personID, roomCode string, in ProfileInput) (storage.Profile, error) {
	if roomCode != "" {
		code, err := NormalizeCode(roomCode)
		if err != nil {
			return storage.Profile{}, err
		}
		roomCode = code
	}
	if _, err := s.GetPerson(ctx, personID); err != nil {
		return storage.Profile{}, err
	}
	p, err := s.store.GetProfile(ctx, personID)
	if err != nil {
		return storage.Profile{}, err
	}
	fields := []struct {
		name string
		in   *string
		dst  *string
		max  int
	}{
		{"headline", in.Headline, &p.Headline, MaxHeadline},
		{"bio", in.Bio, &p.Bio, MaxBio},
		{"interests", in.Interests, &p.Interests, MaxInterests},
		{"looking_for", in.LookingFor, &p.LookingFor, MaxLookingFor},
	}
	for _, f := range fields {
		if f.in == nil {
			continue
		}
		v := strings.TrimSpace(*f.in)
		if utf8.RuneCountInString(v) > f.max {
			return storage.Profile{}, fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidInput, f.name, f.max)
		}
		*f.dst = v
	}

	changed, err := s.store.SaveProfile(ctx, p)
	if err != nil {
		return storage.Profile{}, err
	}
	if !changed {
		return p, nil
	}

	codes := []string{roomCode}
	if roomCode == "" {
		if codes, err = s.store.RoomsForPerson(ctx, personID); err != nil {
			return storage.Profile{}, err
		}
	}
	for _, c := range codes {
		s.trigger.Trigger(c)
	}
	return s.store.GetProfile(ctx, personID)
}

// TriggerRoom requests matchmaking for a room the person belongs to.
func (s *Service) TriggerRoom(ctx context.Context, code, personID string) (storage.Room, error) {
	room, err := s.participantRoom(ctx, code, personID)
	if err != nil {
		return storage.Room{}, err
	}
	s.trigger.Trigger(room.Code)
	return room, nil
}

// Authorize returns the room when personID is a participant.
func (s *Service) Authorize(ctx context.Context, code, personID string) (storage.Room, error) {
	return s.participantRoom(ctx, code, personID)
}

// Me is a person's own record, profile and room codes.
type Me struct {
	Person  storage.Person  `json:"person"`
	Profile storage.Profile `json:"profile"`
	Rooms   []string        `json:"rooms"`
}

func (s *Service) Me(ctx context.Context, personID string) (Me, error) {
	p, err := s.GetPerson(ctx, personID)
	if err != nil {
		return Me{}, err
	}
	prof, err := s.store.GetProfile(ctx, personID)
	if err != nil {
		return Me{}, err
	}
	codes, err := s.store.RoomsForPerson(ctx, personID)
	if err != nil {
		return Me{}, err
	}
	if codes == nil {
		codes = []string{}
	}
	return Me{Person: p, Profile: prof, Rooms: codes}, nil
}

func (s *Service) room(ctx context.Context, code string) (storage.Room, error) {
	room, err := s.store.GetRoomByCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Room{}, ErrNotFound
	}
	return room, err
}

func (s *Service) participantRoom(ctx context.Context, code, personID string) (storage.Room, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return storage.Room{}, err
	}
	room, err := s.room(ctx, code)
	if err != nil {
		return storage.Room{}, err
	}
	ok, err := s.store.IsParticipant(ctx, room.ID, personID)
	if err != nil {
		return storage.Room{}, err
	}
	if !ok {
		return storage.Room{}, ErrNotParticipant
	}
	return room, nil
}

func randomCode() (string, error) {
	b := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// --- Room state ---

type RoomInfo struct {
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

type Viewer struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Email   string          `json:"email"`
	Profile storage.Profile `json:"profile"`
}

type Participant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Headline string `json:"headline"`
}

type OpportunityView struct {
	storage.Opportunity
	Other      Participant  `json:"other"`
	ViewerSide storage.Side `json:"viewer_side"`
}

type State struct {
	Room          RoomInfo          `json:"room"`
	Me            Viewer            `json:"me"`
	Participants  []Participant     `json:"participants"`
	Opportunities []OpportunityView `json:"opportunities"`
}

var visibleStatuses = func() []string {
	out := make([]string, len(opportunity.VisibleStatuses))
	for i, s := range opportunity.VisibleStatuses {
		out[i] = string(s)
	}
	return out
}()

// RoomState assembles what the viewer sees of a room. Non-participants get
// ErrNotFound so room codes cannot be probed.
func (s *Service) RoomState(ctx context.Context, code, viewerID string) (State, error) {
	room, err := s.participantRoom(ctx, code, viewerID)
	if errors.Is(err, ErrNotParticipant) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, err
	}

	members, err := s.store.ListMembers(ctx, room.ID)
	if err != nil {
		return State{}, fmt.Errorf("loading members: %w", err)
	}

	st := State{
		Room:          RoomInfo{Code: room.Code, CreatedAt: room.CreatedAt},
		Participants:  make([]Participant, 0, len(members)),
		Opportunities: []OpportunityView{},
	}
	byID := make(map[string]Participant, len(members))
	for _, m := range members {
		p := Participant{ID: m.Person.ID, Name: m.Person.Name, Headline: m.Profile.Headline}
		st.Participants = append(st.Participants, p)
		byID[p.ID] = p
		if m.Person.ID == viewerID {
			st.Me = Viewer{ID: m.Person.ID, Name: m.Person.Name, Email: m.Person.Email, Profile: m.Profile}
		}
	}

	opps, err := s.store.ListOpportunitiesForPerson(ctx, room.ID, viewerID, visibleStatuses)
	if err != nil {
		return State{}, fmt.Errorf("loading opportunities: %w", err)
	}
	for _, o := range opps {
		side, err := opportunity.Side(o, viewerID)
		if err != nil {
			continue
		}
		otherID := o.PersonB
		if side == storage.SideB {
			otherID = o.PersonA
		}
		other, ok := byID[otherID]
		if !ok {
			other = Participant{ID: otherID}
			if people, err := s.store.GetPeople(ctx, otherID); err == nil {
				other.Name = people[otherID].Name
			}
		}
		st.Opportunities = append(st.Opportunities, OpportunityView{Opportunity: o, Other: other, ViewerSide: side})
	}
	return st, nil
}
