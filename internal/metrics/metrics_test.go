package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordDispatch("user", OutcomeSubmitted)
	m.RecordPost(PostSent, time.Second)
	m.SetQueueDepth(3)
	if m.Registry() != nil {
		t.Fatal("nil metrics must have nil registry")
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.RecordDispatch("project", OutcomeSuppressed)
	m.RecordPost(PostFailed, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`zulipnotify_dispatch_total{outcome="suppressed",scope="project"} 1`,
		`zulipnotify_posts_total{outcome="failed"} 1`,
		`zulipnotify_post_duration_seconds_count 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}
