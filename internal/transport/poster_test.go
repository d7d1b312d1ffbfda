package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"zulipnotify/internal/eventbus"
	"zulipnotify/internal/metrics"
	logx "zulipnotify/pkg/logx"
)

type captured struct {
	auth        string
	contentType string
	form        url.Values
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, <-chan captured) {
	t.Helper()
	ch := make(chan captured, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		ch <- captured{
			auth:        r.Header.Get("Authorization"),
			contentType: r.Header.Get("Content-Type"),
			form:        r.PostForm,
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event, typ string) eventbus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestPostFormAsyncDelivers(t *testing.T) {
	srv, got := newCaptureServer(t, http.StatusOK)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	p := New(Config{Workers: 1, RatePerSec: 100}, srv.Client(), logx.Nop(), bus, metrics.New())
	p.Start(context.Background())
	defer p.Stop(context.Background())

	form := url.Values{"type": {"channel"}, "to": {"general"}, "content": {"hello"}}
	header := http.Header{"Authorization": {"Basic a2V5"}}
	p.PostFormAsync(srv.URL, form, header)

	select {
	case c := <-got:
		if c.auth != "Basic a2V5" {
			t.Fatalf("Authorization = %q", c.auth)
		}
		if c.contentType != "application/x-www-form-urlencoded" {
			t.Fatalf("Content-Type = %q", c.contentType)
		}
		if c.form.Get("to") != "general" || c.form.Get("content") != "hello" {
			t.Fatalf("form = %v", c.form)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the server")
	}

	e := waitEvent(t, events, eventbus.TypePostSent)
	if pe, ok := e.Data.(eventbus.PostEvent); !ok || pe.Status != http.StatusOK {
		t.Fatalf("unexpected sent event data: %#v", e.Data)
	}
}

func TestNon2xxIsPublishedAsFailure(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusUnauthorized)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	p := New(Config{Workers: 1, RatePerSec: 100}, srv.Client(), logx.Nop(), bus, nil)
	p.Start(context.Background())
	defer p.Stop(context.Background())

	p.PostFormAsync(srv.URL, url.Values{"content": {"x"}}, nil)

	e := waitEvent(t, events, eventbus.TypePostFailed)
	pe := e.Data.(eventbus.PostEvent)
	if pe.Status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", pe.Status)
	}
}

func TestSubmitBeforeStartIsStopped(t *testing.T) {
	p := New(Config{}, nil, logx.Nop(), nil, nil)
	if err := p.Submit(Request{URL: "http://chat.example.com"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	p := New(Config{Workers: 1, QueueSize: 1, RatePerSec: 100}, srv.Client(), logx.Nop(), nil, nil)
	p.Start(context.Background())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		p.Stop(ctx)
	}()

	var full bool
	for i := 0; i < 10; i++ {
		if err := p.Submit(Request{URL: srv.URL}); errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
	}
	if !full {
		t.Fatal("expected queue to fill up")
	}
}

func TestStopDrainsQueue(t *testing.T) {
	srv, got := newCaptureServer(t, http.StatusOK)
	p := New(Config{Workers: 1, QueueSize: 8, RatePerSec: 100}, srv.Client(), logx.Nop(), nil, nil)
	p.Start(context.Background())

	for i := 0; i < 3; i++ {
		p.PostFormAsync(srv.URL, url.Values{"content": {"x"}}, nil)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.Stop(ctx)

	if n := len(got); n != 3 {
		t.Fatalf("delivered %d, want 3", n)
	}
	if err := p.Submit(Request{URL: srv.URL}); !errors.Is(err, ErrStopped) {
		t.Fatalf("submit after stop: err = %v", err)
	}
}

func TestHostOf(t *testing.T) {
	if got := hostOf("https://chat.example.com/api/v1/external/x?api_key=secret"); got != "chat.example.com" {
		t.Fatalf("hostOf = %q", got)
	}
	if got := hostOf("::"); got != "invalid" {
		t.Fatalf("hostOf invalid = %q", got)
	}
}
