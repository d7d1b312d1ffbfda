package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"zulipnotify/internal/eventbus"
	"zulipnotify/internal/metrics"
	rtsup "zulipnotify/internal/runtime/supervisor"
	logx "zulipnotify/pkg/logx"
)

// Poster implements fire-and-forget webhook delivery:
// queue + worker pool + rate limit. There are no retries; a failed post is
// logged, counted and published on the bus, never reported to the caller.
//
// It is safe for concurrent use.
type Poster struct {
	mu sync.Mutex

	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics
	client  *http.Client

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan Request
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping
}

func New(cfg Config, client *http.Client, log logx.Logger, bus eventbus.Bus, m *metrics.Metrics) *Poster {
	if log.IsZero() {
		log = logx.Nop()
	}
	if client == nil {
		client = &http.Client{}
	}
	p := &Poster{
		log:     log.With(logx.String("comp", "transport")),
		bus:     bus,
		metrics: m,
		client:  client,
	}
	p.applyLocked(cfg)
	return p
}

// Apply updates the rate limit, timeout and user agent. Workers and queue
// size are fixed at Start.
func (p *Poster) Apply(cfg Config) {
	p.mu.Lock()
	p.applyLocked(cfg)
	p.mu.Unlock()
}

func (p *Poster) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	p.cfg = cfg
	// Burst = rate per sec so an overdue fan-out is not throttled too hard.
	if p.limiter == nil {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
		return
	}
	p.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	p.limiter.SetBurst(cfg.RatePerSec)
}

// Start is idempotent.
func (p *Poster) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.Lock()
	if p.stopDone != nil {
		done := p.stopDone
		p.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		p.mu.Lock()
	}
	if p.queue != nil {
		p.mu.Unlock()
		return
	}

	p.queue = make(chan Request, p.cfg.QueueSize)
	p.accepting = true
	p.sup = rtsup.New(ctx,
		rtsup.WithLogger(p.log),
		rtsup.WithCancelOnError(false),
	)
	sup := p.sup
	q := p.queue
	workers := p.cfg.Workers
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			p.workerLoop(c, q)
			p.mu.Lock()
			stopping := p.stopDone != nil
			p.mu.Unlock()
			if stopping || c.Err() != nil {
				return nil
			}
			return errors.New("transport worker exited unexpectedly")
		}, 250*time.Millisecond, 10*time.Second)
	}
	p.log.Debug("transport started", logx.Int("workers", workers), logx.Int("queue_size", cap(q)))
}

// Stop stops intake and drains the queue best-effort until ctx is done.
func (p *Poster) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.Lock()
	q := p.queue
	sup := p.sup
	if q == nil {
		p.mu.Unlock()
		return
	}
	if p.stopDone != nil {
		done := p.stopDone
		p.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	p.stopDone = done
	p.accepting = false
	p.mu.Unlock()

	go func() {
		defer close(done)
		// In-flight submits finish before the queue closes; workers then drain it.
		p.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		p.mu.Lock()
		p.queue = nil
		p.sup = nil
		p.stopDone = nil
		p.mu.Unlock()
		p.metrics.SetQueueDepth(0)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

// PostFormAsync submits a form POST and returns immediately. Delivery is
// best-effort: a full or stopped queue drops the request.
func (p *Poster) PostFormAsync(target string, form url.Values, header http.Header) {
	err := p.Submit(Request{URL: target, Form: form, Header: header})
	if err != nil {
		p.log.Debug("post dropped", logx.String("host", hostOf(target)), logx.Err(err))
	}
}

// Submit enqueues r. It never blocks.
func (p *Poster) Submit(r Request) error {
	p.mu.Lock()
	if !p.accepting || p.queue == nil {
		p.mu.Unlock()
		p.dropped(r, ErrStopped)
		return ErrStopped
	}
	q := p.queue
	p.sendWG.Add(1)
	p.mu.Unlock()
	defer p.sendWG.Done()

	if r.Queued.IsZero() {
		r.Queued = time.Now()
	}
	select {
	case q <- r:
		p.metrics.SetQueueDepth(len(q))
		p.publish(eventbus.TypePostQueued, eventbus.PostEvent{Host: hostOf(r.URL)})
		return nil
	default:
		p.dropped(r, ErrQueueFull)
		return ErrQueueFull
	}
}

// Pending returns the number of queued requests.
func (p *Poster) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		return 0
	}
	return len(p.queue)
}

func (p *Poster) dropped(r Request, err error) {
	p.metrics.RecordPost(metrics.PostDropped, 0)
	p.publish(eventbus.TypePostDropped, eventbus.PostEvent{Host: hostOf(r.URL), Error: err.Error()})
}

func (p *Poster) publish(typ string, data eventbus.PostEvent) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}

func (p *Poster) workerLoop(ctx context.Context, q <-chan Request) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-q:
			if !ok {
				return
			}
			p.metrics.SetQueueDepth(len(q))
			p.send(ctx, r)
		}
	}
}

func (p *Poster) send(runCtx context.Context, r Request) {
	p.mu.Lock()
	cfg := p.cfg
	lim := p.limiter
	p.mu.Unlock()

	if err := lim.Wait(runCtx); err != nil {
		return
	}

	start := time.Now()
	status, err := p.do(runCtx, cfg, r)
	took := time.Since(start)
	host := hostOf(r.URL)

	if err != nil {
		p.metrics.RecordPost(metrics.PostFailed, took)
		p.publish(eventbus.TypePostFailed, eventbus.PostEvent{Host: host, Status: status, Error: err.Error()})
		p.log.Debug("post failed", logx.String("host", host), logx.Int("status", status), logx.Err(err), logx.Duration("took", took))
		return
	}
	p.metrics.RecordPost(metrics.PostSent, took)
	p.publish(eventbus.TypePostSent, eventbus.PostEvent{Host: host, Status: status})
	p.log.Debug("post sent", logx.String("host", host), logx.Int("status", status), logx.Duration("took", took))
}

func (p *Poster) do(ctx context.Context, cfg Config, r Request) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, strings.NewReader(r.Form.Encode()))
	if err != nil {
		return 0, err
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused; the body itself is ignored.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// hostOf keeps logs free of credentials that webhook URLs often embed.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "invalid"
	}
	return u.Host
}
