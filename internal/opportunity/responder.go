package opportunity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/agentmesh/internal/storage"
)

// MaxAnswerLen caps the free-text answer a person can attach to a decision.
const MaxAnswerLen = 800

var (
	ErrNotFound        = errors.New("opportunity not found")
	ErrForbidden       = errors.New("not a participant of this opportunity")
	ErrInvalidDecision = errors.New("invalid decision")
)

type Store interface {
	UpdateOpportunity(ctx context.Context, id string, mutate func(*storage.Opportunity) error) (storage.Opportunity, error)
	GetRoom(ctx context.Context, id string) (storage.Room, error)
}

type AcceptNotifier interface {
	NotifyAccepted(ctx context.Context, opportunityID string)
}

type Trigger interface {
	Trigger(roomCode string)
}

type Broadcaster interface {
	AnnounceRoomChanged(roomCode string)
}

// Responder applies one person's decision to an opportunity.
type Responder struct {
	store     Store
	notifier  AcceptNotifier
	trigger   Trigger
	broadcast Broadcaster
	logger    *slog.Logger
}

func NewResponder(store Store, n AcceptNotifier, t Trigger, b Broadcaster) *Responder {
	return &Responder{store: store, notifier: n, trigger: t, broadcast: b, logger: slog.Default()}
}

// Respond records the actor's decision and optional answer on their side
// of the opportunity and reconciles the status. Discarded opportunities
// are reported as not found.
func (r *Responder) Respond(ctx context.Context, opportunityID, actorID, decision, answer string) (storage.Opportunity, error) {
	d, err := ParseDecision(decision)
	if err != nil {
		return storage.Opportunity{}, err
	}
	answer = clipAnswer(answer)

	var before Status
	o, err := r.store.UpdateOpportunity(ctx, opportunityID, func(o *storage.Opportunity) error {
		before = Status(o.Status)
		if before == StatusDiscarded {
			return ErrNotFound
		}
		switch actorID {
		case o.PersonA:
			o.DecisionA = string(d)
			if answer != "" {
				o.AnswerA = answer
			}
		case o.PersonB:
			o.DecisionB = string(d)
			if answer != "" {
				o.AnswerB = answer
			}
		default:
			return ErrForbidden
		}
		o.Status = string(Resolve(before, Decision(o.DecisionA), Decision(o.DecisionB)))
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Opportunity{}, ErrNotFound
	}
	if err != nil {
		return storage.Opportunity{}, err
	}

	log := r.logger.With("opportunity", o.ID)
	if Status(o.Status) != before {
		log.Info("opportunity status changed", "from", before, "to", o.Status)
	}
	if Status(o.Status) == StatusAccepted {
		r.notifier.NotifyAccepted(ctx, o.ID)
	}

	room, err := r.store.GetRoom(ctx, o.RoomID)
	if err != nil {
		log.Warn("loading room after response", "room_id", o.RoomID, "error", err)
		return o, nil
	}
	r.trigger.Trigger(room.Code)
	r.broadcast.AnnounceRoomChanged(room.Code)
	return o, nil
}

func clipAnswer(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxAnswerLen {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:MaxAnswerLen]))
}

// Side reports which side of o the person is on.
func Side(o storage.Opportunity, personID string) (storage.Side, error) {
	switch personID {
	case o.PersonA:
		return storage.SideA, nil
	case o.PersonB:
		return storage.SideB, nil
	}
	return "", fmt.Errorf("%w: %s", ErrForbidden, personID)
}
