package sweep

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/agentmesh/internal/storage"
)

type recordingTrigger struct {
	mu    sync.Mutex
	codes []string
}

func (r *recordingTrigger) Trigger(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
}

func (r *recordingTrigger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.codes)
}

type failingLister struct{}

func (failingLister) ListRoomCodes(context.Context) ([]string, error) {
	return nil, errors.New("database is locked")
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedRooms(t *testing.T, s *storage.Store, codes ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.CreatePerson(ctx, storage.Person{ID: "p1", Name: "Ada"}); err != nil {
		t.Fatalf("CreatePerson: %v", err)
	}
	for i, code := range codes {
		r := storage.Room{ID: "r" + string(rune('0'+i)), Code: code, CreatedBy: "p1"}
		if _, err := s.CreateRoom(ctx, r); err != nil {
			t.Fatalf("CreateRoom(%s): %v", code, err)
		}
	}
}

func TestRunOnce_TriggersEveryRoom(t *testing.T) {
	store := openTestStore(t)
	seedRooms(t, store, "AAA111", "BBB222", "CCC333")
	tr := &recordingTrigger{}

	n, err := NewWorker(store, tr, time.Minute).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 3 {
		t.Errorf("RunOnce = %d, want 3", n)
	}
	got := map[string]bool{}
	for _, c := range tr.codes {
		got[c] = true
	}
	if !reflect.DeepEqual(got, map[string]bool{"AAA111": true, "BBB222": true, "CCC333": true}) {
		t.Errorf("triggered %v", tr.codes)
	}
}

func TestRunOnce_NoRooms(t *testing.T) {
	tr := &recordingTrigger{}
	n, err := NewWorker(openTestStore(t), tr, time.Minute).RunOnce(context.Background())
	if err != nil || n != 0 || tr.count() != 0 {
		t.Errorf("RunOnce = %d, %v; triggers %v", n, err, tr.codes)
	}
}

func TestRunOnce_ListError(t *testing.T) {
	if _, err := NewWorker(failingLister{}, &recordingTrigger{}, time.Minute).RunOnce(context.Background()); err == nil {
		t.Error("expected error from failing lister")
	}
}

func TestRun_SweepsOnInterval(t *testing.T) {
	store := openTestStore(t)
	seedRooms(t, store, "AAA111")
	tr := &recordingTrigger{}
	w := NewWorker(store, tr, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for tr.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
	if tr.count() < 2 {
		t.Errorf("triggers = %d after 2s, want at least 2", tr.count())
	}
}

func TestRun_Disabled(t *testing.T) {
	tr := &recordingTrigger{}
	done := make(chan struct{})
	go func() {
		NewWorker(openTestStore(t), tr, 0).Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with zero interval did not return")
	}
	if tr.count() != 0 {
		t.Errorf("disabled worker triggered %v", tr.codes)
	}
}
