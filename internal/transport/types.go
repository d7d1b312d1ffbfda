package transport

import (
	"errors"
	"net/http"
	"net/url"
	"time"
)

var (
	ErrQueueFull = errors.New("transport queue full")
	ErrStopped   = errors.New("transport stopped")
)

// Config controls the async poster.
type Config struct {
	Workers    int
	QueueSize  int
	RatePerSec int
	Timeout    time.Duration
	UserAgent  string
}

// Request is one form-encoded POST.
type Request struct {
	URL    string
	Form   url.Values
	Header http.Header
	Queued time.Time
}

// AsyncPoster is what callers see: submit and forget.
type AsyncPoster interface {
	PostFormAsync(url string, form url.Values, header http.Header)
}

const defaultUserAgent = "zulipnotify/1"

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	return c
}
