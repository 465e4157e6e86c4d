package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/agentmesh/internal/matching"
	"github.com/kalambet/agentmesh/internal/storage"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestMetrics_Exposition(t *testing.T) {
	m := New()
	m.ObservePass(matching.PassReport{Room: "ROOM42", Embedded: 3, Evaluated: 6, Proposed: 2, Discarded: 3, Skipped: 1}, 1500*time.Millisecond)
	m.ObserveEmail(storage.NotifyProposal, "sent")
	m.ObserveEmail(storage.NotifyProposal, "sent")
	m.ObserveResponse("ACCEPT", "ACCEPTED")
	m.ObserveRequest("/rooms/{code}", 404)
	subscribers := 4
	m.GaugeFunc("ws_connections", "Open websocket connections.", func() int { return subscribers })

	body := scrape(t, m)
	for _, want := range []string{
		"agentmesh_match_passes_total 1",
		`agentmesh_match_pairs_total{outcome="proposed"} 2`,
		`agentmesh_match_pairs_total{outcome="discarded"} 3`,
		`agentmesh_match_pairs_total{outcome="absent"} 1`,
		`agentmesh_match_pairs_total{outcome="skipped"} 1`,
		"agentmesh_profiles_embedded_total 3",
		"agentmesh_match_pass_duration_seconds_count 1",
		`agentmesh_emails_total{event="proposal",outcome="sent"} 2`,
		`agentmesh_opportunity_responses_total{decision="ACCEPT",status="ACCEPTED"} 1`,
		`agentmesh_http_requests_total{code="4xx",route="/rooms/{code}"} 1`,
		"agentmesh_ws_connections 4",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveEmail(storage.NotifyAccepted, "failed")
	if strings.Contains(scrape(t, b), "agentmesh_emails_total") {
		t.Error("observation leaked into a second registry")
	}
}

func TestCodeClass(t *testing.T) {
	tests := map[int]string{200: "2xx", 201: "2xx", 302: "3xx", 400: "4xx", 499: "4xx", 500: "5xx", 503: "5xx"}
	for code, want := range tests {
		if got := codeClass(code); got != want {
			t.Errorf("codeClass(%d) = %s, want %s", code, got, want)
		}
	}
}
