package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/agentmesh/internal/evaluator"
	"github.com/kalambet/agentmesh/internal/opportunity"
	"github.com/kalambet/agentmesh/internal/storage"
)

const (
	DefaultMinScore = 0.55
	DefaultBudget   = 6
)

// Store is the persistence a pass reads and writes.
type Store interface {
	GetRoomByCode(ctx context.Context, code string) (storage.Room, error)
	ListMembers(ctx context.Context, roomID string) ([]storage.Member, error)
	SetEmbedding(ctx context.Context, p storage.Profile, vec []float32) error
	OpportunityExists(ctx context.Context, roomID, a, b string) (bool, error)
	CreateOpportunity(ctx context.Context, o storage.Opportunity) (storage.Opportunity, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, bool)
}

type Evaluator interface {
	Evaluate(ctx context.Context, in evaluator.PairInput) (evaluator.Judgment, bool)
}

// Notifier is told about every newly proposed opportunity.
type Notifier interface {
	NotifyProposed(ctx context.Context, opportunityID string)
}

// Broadcaster tells connected clients that a room's state changed.
type Broadcaster interface {
	AnnounceRoomChanged(roomCode string)
}

// Observer receives the outcome of every pass. Metrics implement it.
type Observer interface {
	ObservePass(report PassReport, elapsed time.Duration)
}

type Config struct {
	Threshold float64
	MinScore  float64
	Budget    int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, MinScore: DefaultMinScore, Budget: DefaultBudget}
}

// PassReport summarizes one matchmaking pass over a room.
type PassReport struct {
	Room       string
	Members    int
	Eligible   int
	Embedded   int
	Candidates int
	Evaluated  int
	Proposed   int
	Discarded  int
	Skipped    int
}

// Matchmaker runs matchmaking passes. It holds no per-room state; the
// scheduler guarantees one pass per room at a time.
type Matchmaker struct {
	store     Store
	embedder  Embedder
	evaluator Evaluator
	notifier  Notifier
	broadcast Broadcaster
	observer  Observer
	cfg       Config
	logger    *slog.Logger
	newID     func() string
}

type Option func(*Matchmaker)

func WithObserver(o Observer) Option { return func(m *Matchmaker) { m.observer = o } }

func WithLogger(l *slog.Logger) Option { return func(m *Matchmaker) { m.logger = l } }

// WithIDGenerator overrides how opportunity ids are minted.
func WithIDGenerator(fn func() string) Option { return func(m *Matchmaker) { m.newID = fn } }

// NewMatchmaker wires a Matchmaker. Threshold and MinScore are used as
// given, zero included; start from DefaultConfig for the production values.
// A non-positive Budget takes DefaultBudget.
func NewMatchmaker(store Store, emb Embedder, eval Evaluator, n Notifier, b Broadcaster, cfg Config, opts ...Option) *Matchmaker {
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	m := &Matchmaker{
		store:     store,
		embedder:  emb,
		evaluator: eval,
		notifier:  n,
		broadcast: b,
		cfg:       cfg,
		logger:    slog.Default(),
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

type eligible struct {
	member storage.Member
	text   string
}

// RunPass runs one matchmaking pass for the room. A missing room is not an
// error. Errors are returned only for storage failures; adapter failures
// are absorbed and leave the affected pair for a later pass.
func (m *Matchmaker) RunPass(ctx context.Context, roomCode string) (PassReport, error) {
	start := time.Now()
	report := PassReport{Room: roomCode}
	log := m.logger.With("room", roomCode)

	room, err := m.store.GetRoomByCode(ctx, roomCode)
	if errors.Is(err, storage.ErrNotFound) {
		log.Debug("room vanished before pass")
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("loading room: %w", err)
	}

	members, err := m.store.ListMembers(ctx, room.ID)
	if err != nil {
		return report, fmt.Errorf("loading members: %w", err)
	}
	report.Members = len(members)

	var withText []eligible
	for _, mem := range members {
		if mem.Profile.HasText() {
			withText = append(withText, eligible{member: mem, text: RenderProfile(mem.Person.Name, mem.Profile)})
		}
	}
	report.Eligible = len(withText)
	if len(withText) < 2 {
		return report, nil
	}

	for i := range withText {
		if len(withText[i].member.Profile.Embedding) > 0 {
			continue
		}
		vec, ok := m.embedder.Embed(ctx, withText[i].text)
		if !ok {
			continue
		}
		err := m.store.SetEmbedding(ctx, withText[i].member.Profile, vec)
		if errors.Is(err, storage.ErrStale) {
			// Edited mid-pass; the save re-triggered the room and the
			// next pass embeds the new text.
			log.Debug("profile changed while embedding", "person", withText[i].member.Person.ID)
			continue
		}
		if err != nil {
			return report, fmt.Errorf("saving embedding: %w", err)
		}
		withText[i].member.Profile.Embedding = vec
		report.Embedded++
	}

	var pool []eligible
	var ranked []Ranked
	for _, e := range withText {
		if len(e.member.Profile.Embedding) == 0 {
			continue
		}
		pool = append(pool, e)
		ranked = append(ranked, Ranked{ID: e.member.Person.ID, Vector: e.member.Profile.Embedding})
	}
	if len(pool) < 2 {
		return report, nil
	}

	candidates := Rank(ranked, m.cfg.Threshold)
	report.Candidates = len(candidates)
	defer func() {
		m.broadcast.AnnounceRoomChanged(roomCode)
		log.Info("matchmaking pass finished",
			"members", report.Members,
			"candidates", report.Candidates,
			"evaluated", report.Evaluated,
			"proposed", report.Proposed,
			"discarded", report.Discarded,
			"skipped", report.Skipped,
			"duration", time.Since(start))
		if m.observer != nil {
			m.observer.ObservePass(report, time.Since(start))
		}
	}()

	for _, c := range candidates {
		if report.Evaluated >= m.cfg.Budget {
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		exists, err := m.store.OpportunityExists(ctx, room.ID, c.A, c.B)
		if err != nil {
			return report, fmt.Errorf("checking pair: %w", err)
		}
		if exists {
			report.Skipped++
			continue
		}

		a, b := pool[c.IndexA], pool[c.IndexB]
		report.Evaluated++
		j, ok := m.evaluator.Evaluate(ctx, evaluator.PairInput{
			NameA: a.member.Person.Name, TextA: a.text,
			NameB: b.member.Person.Name, TextB: b.text,
		})
		if !ok {
			log.Debug("evaluation absent", "a", c.A, "b", c.B)
			continue
		}

		status := opportunity.Classify(j.ShouldConnect, j.Score, m.cfg.MinScore)
		created, err := m.store.CreateOpportunity(ctx, storage.Opportunity{
			ID:         m.newID(),
			RoomID:     room.ID,
			PersonA:    c.A,
			PersonB:    c.B,
			Status:     string(status),
			Score:      j.Score,
			Rationale:  j.Rationale,
			Transcript: toStorageTurns(j.Transcript),
			IntroA:     j.IntroA,
			IntroB:     j.IntroB,
			QuestionA:  j.QuestionA,
			QuestionB:  j.QuestionB,
		})
		if errors.Is(err, storage.ErrConflict) {
			log.Debug("pair already recorded", "a", c.A, "b", c.B)
			continue
		}
		if err != nil {
			return report, fmt.Errorf("creating opportunity: %w", err)
		}

		log.Debug("pair evaluated", "a", c.A, "b", c.B, "score", j.Score, "status", status)
		if status == opportunity.StatusProposed {
			report.Proposed++
			m.notifier.NotifyProposed(ctx, created.ID)
		} else {
			report.Discarded++
		}
	}
	return report, nil
}

func toStorageTurns(turns []evaluator.Turn) []storage.Turn {
	out := make([]storage.Turn, len(turns))
	for i, t := range turns {
		out[i] = storage.Turn{Speaker: string(t.Speaker), Message: t.Message}
	}
	return out
}
