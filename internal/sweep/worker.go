// Package sweep periodically re-triggers matchmaking for every room so that
// passes skipped while the embedder or evaluator was unavailable are retried.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RoomLister lists the codes of all rooms.
type RoomLister interface {
	ListRoomCodes(ctx context.Context) ([]string, error)
}

// Trigger requests a matchmaking pass for a room.
type Trigger interface {
	Trigger(roomCode string)
}

// Worker triggers every room on a fixed interval.
type Worker struct {
	rooms    RoomLister
	trigger  Trigger
	interval time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker. An interval <= 0 disables Run.
func NewWorker(rooms RoomLister, trigger Trigger, interval time.Duration) *Worker {
	return &Worker{
		rooms:    rooms,
		trigger:  trigger,
		interval: interval,
		logger:   slog.Default(),
	}
}

// Run sweeps until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w.interval <= 0 {
		w.logger.Info("room sweep disabled")
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("room sweep failed", "error", err)
			continue
		}
		w.logger.Debug("room sweep", "rooms", n)
	}
}

// RunOnce triggers every room once and returns how many were triggered.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	codes, err := w.rooms.ListRoomCodes(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing rooms: %w", err)
	}
	for i, code := range codes {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		w.trigger.Trigger(code)
	}
	return len(codes), nil
}
