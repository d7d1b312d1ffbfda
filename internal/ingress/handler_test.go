package ingress

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"zulipnotify/internal/storage"
	"zulipnotify/internal/zulip"
	"zulipnotify/pkg/logx"
)

type call struct {
	scope   string
	id      int64
	name    string
	event   string
	author  string
	logged  bool
	taskIDs []int64
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeNotifier) record(ctx context.Context, c call, d zulip.EventData) error {
	s := zulip.SessionFrom(ctx)
	c.logged = s.IsLogged()
	c.author = s.Fullname()
	c.taskIDs = append(c.taskIDs, int64(d.Task.ID))
	for _, t := range d.Tasks {
		c.taskIDs = append(c.taskIDs, int64(t.ID))
	}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	return f.err
}

func (f *fakeNotifier) NotifyUser(ctx context.Context, u zulip.User, name string, d zulip.EventData) error {
	return f.record(ctx, call{scope: "user", id: u.ID, event: name}, d)
}

func (f *fakeNotifier) NotifyProject(ctx context.Context, p storage.Project, name string, d zulip.EventData) error {
	return f.record(ctx, call{scope: "project", id: p.ID, name: p.Name, event: name}, d)
}

func newTestHandler(t *testing.T, token string) (http.Handler, *fakeNotifier, storage.Store) {
	t.Helper()
	n := &fakeNotifier{}
	st := storage.NewMemory()
	t.Cleanup(func() { _ = st.Close() })
	h := NewHandler(HandlerDeps{
		Notifier:    n,
		Projects:    st,
		Token:       func() string { return token },
		Metrics:     http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "metrics") }),
		MetricsPath: "/metrics",
	})
	return h, n, st
}

func do(h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNotifyUserRoute(t *testing.T) {
	h, n, _ := newTestHandler(t, "")
	body := `{"user":{"id":"7"},"event_name":"task.overdue","event_data":{"tasks":[{"id":1,"project_id":2},{"id":"3","project_id":4}]},"actor":{"id":1,"username":"admin","name":"Admin"}}`
	rec := do(h, http.MethodPost, "/v1/notify/user", body, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
	if len(n.calls) != 1 {
		t.Fatalf("calls=%d", len(n.calls))
	}
	c := n.calls[0]
	if c.scope != "user" || c.id != 7 || c.event != "task.overdue" {
		t.Fatalf("call=%#v", c)
	}
	if !c.logged || c.author != "Admin" {
		t.Fatalf("actor not on context: %#v", c)
	}
	if len(c.taskIDs) != 3 || c.taskIDs[1] != 1 || c.taskIDs[2] != 3 {
		t.Fatalf("taskIDs=%v", c.taskIDs)
	}
}

func TestNotifyProjectRouteRecordsProjects(t *testing.T) {
	h, n, st := newTestHandler(t, "")
	body := `{"project":{"id":5,"name":"Delta"},"event_name":"task.create","event_data":{"task":{"id":9,"title":"x","project_id":5,"project_name":"Other"}}}`
	rec := do(h, http.MethodPost, "/v1/notify/project", body, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
	if len(n.calls) != 1 || n.calls[0].name != "Delta" || n.calls[0].logged {
		t.Fatalf("calls=%#v", n.calls)
	}
	p, err := st.ProjectByID(context.Background(), 5)
	if err != nil {
		t.Fatalf("ProjectByID: %v", err)
	}
	if p.Name != "Delta" {
		t.Fatalf("project name=%q", p.Name)
	}
}

func TestTaskProjectNamesAreRecorded(t *testing.T) {
	h, _, st := newTestHandler(t, "")
	body := `{"user":{"id":1},"event_name":"task.overdue","event_data":{"tasks":[{"id":1,"project_id":2,"project_name":"Beta"},{"id":2,"project_id":3}]}}`
	if rec := do(h, http.MethodPost, "/v1/notify/user", body, nil); rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d", rec.Code)
	}
	if p, err := st.ProjectByID(context.Background(), 2); err != nil || p.Name != "Beta" {
		t.Fatalf("project 2=%#v err=%v", p, err)
	}
	if _, err := st.ProjectByID(context.Background(), 3); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("project 3 err=%v", err)
	}
}

func TestBadRequests(t *testing.T) {
	h, n, _ := newTestHandler(t, "")
	cases := []struct {
		path string
		body string
		code int
	}{
		{"/v1/notify/user", `{`, http.StatusBadRequest},
		{"/v1/notify/user", `{"user":{"id":1}}`, http.StatusBadRequest},
		{"/v1/notify/user", `{"event_name":"task.create"}`, http.StatusBadRequest},
		{"/v1/notify/user", `{"user":{"id":"abc"},"event_name":"task.create"}`, http.StatusBadRequest},
		{"/v1/notify/project", `{"project":{"id":0},"event_name":"task.create"}`, http.StatusBadRequest},
		{"/v1/notify/project", `{"project":{"id":1},"event_name":"task.create"} {}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := do(h, http.MethodPost, tc.path, tc.body, nil)
		if rec.Code != tc.code {
			t.Fatalf("%s %s: status=%d want %d", tc.path, tc.body, rec.Code, tc.code)
		}
	}
	if len(n.calls) != 0 {
		t.Fatalf("notifier called %d times", len(n.calls))
	}
}

func TestBodyTooLarge(t *testing.T) {
	h, n, _ := newTestHandler(t, "")
	body := `{"user":{"id":1},"event_name":"task.create","event_data":{"task":{"title":"` + strings.Repeat("x", maxBodyBytes) + `"}}}`
	rec := do(h, http.MethodPost, "/v1/notify/user", body, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d", rec.Code)
	}
	if len(n.calls) != 0 {
		t.Fatalf("notifier called %d times", len(n.calls))
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _, _ := newTestHandler(t, "")
	rec := do(h, http.MethodGet, "/v1/notify/user", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestNotifierErrorIs500(t *testing.T) {
	h, n, _ := newTestHandler(t, "")
	n.err = errors.New("store down")
	rec := do(h, http.MethodPost, "/v1/notify/user", `{"user":{"id":1},"event_name":"task.create"}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	h, n, _ := newTestHandler(t, "s3cret")
	body := `{"user":{"id":1},"event_name":"task.create"}`

	if rec := do(h, http.MethodPost, "/v1/notify/user", body, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status=%d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/v1/notify/user", body, map[string]string{"Authorization": "Bearer nope"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status=%d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/v1/notify/user", body, map[string]string{"Authorization": "Bearer s3cret"}); rec.Code != http.StatusAccepted {
		t.Fatalf("good token: status=%d", rec.Code)
	}
	if len(n.calls) != 1 {
		t.Fatalf("calls=%d", len(n.calls))
	}
	if rec := do(h, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz needs no token: status=%d", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	h, _, _ := newTestHandler(t, "")
	rec := do(h, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "metrics" {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestServerStartStop(t *testing.T) {
	h, _, _ := newTestHandler(t, "")
	srv := NewServer(Config{Addr: "127.0.0.1:0"}, h, nil, logx.Nop())
	srv.Start(context.Background())

	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatalf("server not ready")
	}
	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Stop(ctx)
	if srv.Addr() != "" {
		t.Fatalf("addr after stop=%q", srv.Addr())
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:8089": true,
		"localhost:80":   true,
		"[::1]:80":       true,
		":8089":          false,
		"0.0.0.0:8089":   false,
		"10.0.0.1:80":    false,
	}
	for in, want := range cases {
		if got := isLoopbackAddr(in); got != want {
			t.Fatalf("isLoopbackAddr(%q)=%v want %v", in, got, want)
		}
	}
}
