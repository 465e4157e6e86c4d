// Package notify emails both people of an opportunity when it is proposed
// and again when both have accepted. Each side is emailed at most once per
// event; the guard timestamps live on the opportunity row.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/kalambet/agentmesh/internal/opportunity"
	"github.com/kalambet/agentmesh/internal/storage"
)

type Store interface {
	GetOpportunity(ctx context.Context, id string) (storage.Opportunity, error)
	GetRoom(ctx context.Context, id string) (storage.Room, error)
	GetPeople(ctx context.Context, ids ...string) (map[string]storage.Person, error)
	MarkNotified(ctx context.Context, id string, event storage.NotifyEvent, side storage.Side) (bool, error)
}

// Observer counts delivery outcomes. Metrics implement it.
type Observer interface {
	ObserveEmail(event storage.NotifyEvent, outcome string)
}

// Notifier implements the proposal and acceptance notifications.
type Notifier struct {
	store    Store
	mailer   Mailer
	baseURL  string
	observer Observer
	logger   *slog.Logger

	// Serializes check-send-mark so concurrent callers cannot double-send.
	mu sync.Mutex
}

func New(store Store, mailer Mailer, baseURL string) *Notifier {
	return &Notifier{
		store:   store,
		mailer:  mailer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  slog.Default(),
	}
}

func (n *Notifier) SetObserver(o Observer) { n.observer = o }

// NotifyProposed emails each side that has not yet been told about the
// proposal. It does nothing unless the opportunity is PROPOSED.
func (n *Notifier) NotifyProposed(ctx context.Context, opportunityID string) {
	n.notify(ctx, opportunityID, storage.NotifyProposal, opportunity.StatusProposed)
}

// NotifyAccepted emails each side that has not yet been told about the
// acceptance. It does nothing unless the opportunity is ACCEPTED.
func (n *Notifier) NotifyAccepted(ctx context.Context, opportunityID string) {
	n.notify(ctx, opportunityID, storage.NotifyAccepted, opportunity.StatusAccepted)
}

func (n *Notifier) notify(ctx context.Context, id string, event storage.NotifyEvent, want opportunity.Status) {
	n.mu.Lock()
	defer n.mu.Unlock()

	log := n.logger.With("opportunity", id, "event", event)
	o, err := n.store.GetOpportunity(ctx, id)
	if err != nil {
		log.Warn("loading opportunity for notification", "error", err)
		return
	}
	if opportunity.Status(o.Status) != want {
		return
	}
	room, err := n.store.GetRoom(ctx, o.RoomID)
	if err != nil {
		log.Warn("loading room for notification", "error", err)
		return
	}
	people, err := n.store.GetPeople(ctx, o.PersonA, o.PersonB)
	if err != nil {
		log.Warn("loading people for notification", "error", err)
		return
	}

	env := envelope{
		opp:  o,
		room: room,
		a:    people[o.PersonA],
		b:    people[o.PersonB],
		url:  n.roomURL(room.Code),
	}
	for _, side := range []storage.Side{storage.SideA, storage.SideB} {
		if sent(o, event, side) {
			continue
		}
		msg, ok := compose(env, event, side)
		if !ok {
			continue
		}
		if err := n.mailer.Send(ctx, msg); err != nil {
			outcome := "failed"
			if errors.Is(err, ErrDisabled) {
				outcome = "disabled"
			} else {
				log.Warn("email failed", "side", side, "to", msg.To, "error", err)
			}
			n.observe(event, outcome)
			continue
		}
		log.Info("email sent", "side", side, "to", msg.To, "provider", n.mailer.Provider())
		n.observe(event, "sent")
		if _, err := n.store.MarkNotified(ctx, o.ID, event, side); err != nil {
			log.Error("recording notification", "side", side, "error", err)
		}
	}
}

func (n *Notifier) observe(event storage.NotifyEvent, outcome string) {
	if n.observer != nil {
		n.observer.ObserveEmail(event, outcome)
	}
}

func (n *Notifier) roomURL(code string) string {
	return n.baseURL + "/rooms/" + code
}

func sent(o storage.Opportunity, event storage.NotifyEvent, side storage.Side) bool {
	switch {
	case event == storage.NotifyProposal && side == storage.SideA:
		return o.ProposalNotifiedAAt != nil
	case event == storage.NotifyProposal && side == storage.SideB:
		return o.ProposalNotifiedBAt != nil
	case event == storage.NotifyAccepted && side == storage.SideA:
		return o.AcceptedNotifiedAAt != nil
	default:
		return o.AcceptedNotifiedBAt != nil
	}
}
