package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kalambet/agentmesh/internal/storage"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []Message
	fail func(Message) error
}

func (f *fakeMailer) Send(_ context.Context, m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(m); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeMailer) Provider() string { return "fake" }

type countObserver struct{ outcomes map[string]int }

func (c *countObserver) ObserveEmail(event storage.NotifyEvent, outcome string) {
	c.outcomes[string(event)+":"+outcome]++
}

func openStore(t *testing.T, status string, people ...storage.Person) *storage.Store {
	t.Helper()
	ctx := context.Background()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	for _, p := range people {
		if _, err := s.CreatePerson(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.CreateRoom(ctx, storage.Room{ID: "r1", Code: "MESH42", CreatedBy: people[0].ID}); err != nil {
		t.Fatal(err)
	}
	_, err = s.CreateOpportunity(ctx, storage.Opportunity{
		ID: "opp", RoomID: "r1", PersonA: people[0].ID, PersonB: people[1].ID, Status: status,
		Rationale: "Both build compilers.",
		IntroA:    "Say hi to Bo.", IntroB: "Say hi to Ada.",
		QuestionA: "Free Tuesday?", QuestionB: "Prefer email?",
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

var (
	ada = storage.Person{ID: "a", Name: "Ada", Email: "ada@example.com"}
	bo  = storage.Person{ID: "b", Name: "Bo", Email: "bo@example.com"}
)

func TestNotifyProposed_BothSidesOnce(t *testing.T) {
	s := openStore(t, "PROPOSED", ada, bo)
	m := &fakeMailer{}
	n := New(s, m, "https://mesh.example.com/")
	obs := &countObserver{outcomes: map[string]int{}}
	n.SetObserver(obs)

	n.NotifyProposed(context.Background(), "opp")
	if len(m.sent) != 2 {
		t.Fatalf("sent %d emails, want 2", len(m.sent))
	}

	toAda := m.sent[0]
	if toAda.To != "ada@example.com" || toAda.Subject != "Agent Mesh: potential match (Bo)" {
		t.Errorf("email to A = %+v", toAda)
	}
	for _, want := range []string{
		"Potential match in room MESH42",
		"Other person: Bo",
		"Why: Both build compilers.",
		"Intro drafted for you:\nSay hi to Bo.",
		"Question for you:\nFree Tuesday?",
		"Open: https://mesh.example.com/rooms/MESH42",
	} {
		if !strings.Contains(toAda.Text, want) {
			t.Errorf("email to A missing %q:\n%s", want, toAda.Text)
		}
	}
	if strings.Contains(toAda.Text, "Prefer email?") {
		t.Error("email to A contains B's question")
	}

	o, _ := s.GetOpportunity(context.Background(), "opp")
	if o.ProposalNotifiedAAt == nil || o.ProposalNotifiedBAt == nil {
		t.Errorf("proposal timestamps not set: %+v", o)
	}

	n.NotifyProposed(context.Background(), "opp")
	if len(m.sent) != 2 {
		t.Errorf("second call sent again: %d emails", len(m.sent))
	}
	if obs.outcomes["proposal:sent"] != 2 {
		t.Errorf("observer = %v", obs.outcomes)
	}
}

func TestNotify_StatusMismatch(t *testing.T) {
	s := openStore(t, "DISCARDED", ada, bo)
	m := &fakeMailer{}
	n := New(s, m, "")
	n.NotifyProposed(context.Background(), "opp")
	n.NotifyAccepted(context.Background(), "opp")
	if len(m.sent) != 0 {
		t.Errorf("sent %d emails for discarded opportunity", len(m.sent))
	}
}

func TestNotify_FailureLeavesSideRetryable(t *testing.T) {
	s := openStore(t, "PROPOSED", ada, bo)
	m := &fakeMailer{fail: func(msg Message) error {
		if msg.To == "bo@example.com" {
			return errors.New("smtp 451")
		}
		return nil
	}}
	n := New(s, m, "")

	n.NotifyProposed(context.Background(), "opp")
	o, _ := s.GetOpportunity(context.Background(), "opp")
	if o.ProposalNotifiedAAt == nil || o.ProposalNotifiedBAt != nil {
		t.Fatalf("timestamps after partial failure: A=%v B=%v", o.ProposalNotifiedAAt, o.ProposalNotifiedBAt)
	}

	m.fail = nil
	n.NotifyProposed(context.Background(), "opp")
	if len(m.sent) != 2 || m.sent[1].To != "bo@example.com" {
		t.Errorf("retry sent %+v, want only B", m.sent)
	}
}

func TestNotify_DisabledSetsNothing(t *testing.T) {
	s := openStore(t, "PROPOSED", ada, bo)
	mailer, err := NewMailer(MailConfig{ResendAPIKey: "re_123"})
	if err != nil {
		t.Fatal(err)
	}
	if mailer.Provider() != "disabled" {
		t.Fatalf("provider = %s, want disabled without mail.from", mailer.Provider())
	}
	New(s, mailer, "").NotifyProposed(context.Background(), "opp")

	o, _ := s.GetOpportunity(context.Background(), "opp")
	if o.ProposalNotifiedAAt != nil || o.ProposalNotifiedBAt != nil {
		t.Error("disabled mailer set notification timestamps")
	}
}

func TestNotifyAccepted_Body(t *testing.T) {
	noEmail := storage.Person{ID: "b", Name: ""}
	s := openStore(t, "ACCEPTED", ada, noEmail)
	m := &fakeMailer{}
	New(s, m, "http://localhost:4000").NotifyAccepted(context.Background(), "opp")

	if len(m.sent) != 1 {
		t.Fatalf("sent %d emails, want 1 (B has no address)", len(m.sent))
	}
	got := m.sent[0]
	if got.Subject != "Agent Mesh: accepted match (Someone)" {
		t.Errorf("subject = %q", got.Subject)
	}
	want := "Accepted match in room MESH42\n\n" +
		"You: Ada <ada@example.com>\n\n" +
		"Them: Someone\n\n" +
		"Suggested intro you can send:\nSay hi to Bo.\n\n" +
		"Open: http://localhost:4000/rooms/MESH42"
	if got.Text != want {
		t.Errorf("body =\n%s\nwant\n%s", got.Text, want)
	}

	o, _ := s.GetOpportunity(context.Background(), "opp")
	if o.AcceptedNotifiedAAt == nil || o.AcceptedNotifiedBAt != nil {
		t.Errorf("accepted timestamps: A=%v B=%v", o.AcceptedNotifiedAAt, o.AcceptedNotifiedBAt)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		p    storage.Person
		want string
	}{
		{storage.Person{Name: " Ada ", Email: "a@x"}, "Ada"},
		{storage.Person{Email: "a@x"}, "a@x"},
		{storage.Person{}, "Someone"},
	}
	for _, tt := range tests {
		if got := displayName(tt.p); got != tt.want {
			t.Errorf("displayName(%+v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestNewMailer_Selection(t *testing.T) {
	tests := []struct {
		name string
		cfg  MailConfig
		want string
	}{
		{"nothing", MailConfig{}, "disabled"},
		{"from only", MailConfig{From: "mesh@example.com"}, "disabled"},
		{"resend", MailConfig{From: "mesh@example.com", ResendAPIKey: "re_1", SMTPHost: "smtp.example.com"}, "resend"},
		{"smtp", MailConfig{From: "mesh@example.com", SMTPHost: "smtp.example.com", SMTPPort: 587, SMTPUser: "u", SMTPPassword: "p"}, "smtp"},
		{"smtp incomplete", MailConfig{From: "mesh@example.com", SMTPHost: "smtp.example.com", SMTPPort: 587}, "disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMailer(tt.cfg)
			if err != nil {
				t.Fatalf("NewMailer: %v", err)
			}
			if m.Provider() != tt.want {
				t.Errorf("provider = %s, want %s", m.Provider(), tt.want)
			}
		})
	}
}
