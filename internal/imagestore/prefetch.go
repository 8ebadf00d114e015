package imagestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vbonduro/cardledger/internal/metrics"
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 64
	defaultTimeout   = 5 * time.Second
	maxImageBytes    = 5 << 20
)

type job struct {
	key string
	url string
}

// Prefetcher downloads card images into a Store in the background. Enqueue
// never blocks: requests are dropped when the queue is full or the key is
// already queued.
type Prefetcher struct {
	store   Store
	client  *http.Client
	logger  *slog.Logger
	workers int

	queue chan job
	wg    sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool
}

type PrefetchOption func(*Prefetcher)

func WithWorkers(n int) PrefetchOption {
	return func(p *Prefetcher) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) PrefetchOption {
	return func(p *Prefetcher) {
		if n > 0 {
			p.queue = make(chan job, n)
		}
	}
}

func WithHTTPClient(c *http.Client) PrefetchOption {
	return func(p *Prefetcher) { p.client = c }
}

// NewPrefetcher starts the worker goroutines. Call Close to stop them.
func NewPrefetcher(store Store, logger *slog.Logger, opts ...PrefetchOption) *Prefetcher {
	p := &Prefetcher{
		store:    store,
		client:   &http.Client{Timeout: defaultTimeout},
		logger:   logger.With("component", "image_prefetcher"),
		workers:  defaultWorkers,
		queue:    make(chan job, defaultQueueSize),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Enqueue schedules a download of url under key and reports whether it was
// accepted.
func (p *Prefetcher) Enqueue(key, url string) bool {
	if key == "" || url == "" {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	if _, ok := p.inflight[key]; ok {
		return false
	}

	select {
	case p.queue <- job{key: key, url: url}:
		p.inflight[key] = struct{}{}
		return true
	default:
		metrics.ImageQueueDropped.Inc()
		p.logger.Debug("image queue full, dropping request", "key", key)
		return false
	}
}

// Close stops accepting work, finishes queued downloads and waits for the
// workers to exit.
func (p *Prefetcher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Prefetcher) run() {
	defer p.wg.Done()
	for j := range p.queue {
		result := p.fetch(j)
		metrics.ImageFetches.WithLabelValues(result).Inc()

		p.mu.Lock()
		delete(p.inflight, j.key)
		p.mu.Unlock()
	}
}

func (p *Prefetcher) fetch(j job) string {
	timeout := p.client.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout+time.Second)
	defer cancel()

	if rc, _, err := p.store.Get(ctx, j.key); err == nil {
		_ = rc.Close()
		return metrics.ResultHit
	} else if !errors.Is(err, ErrNotFound) {
		p.logger.Warn("image lookup failed", "key", j.key, "error", err)
	}

	if err := p.download(ctx, j); err != nil {
		p.logger.Warn("image download failed", "key", j.key, "url", j.url, "error", err)
		return metrics.ResultError
	}
	p.logger.Debug("image cached", "key", j.key)
	return metrics.ResultOK
}

func (p *Prefetcher) download(ctx context.Context, j job) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch image: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			p.logger.Error("failed to close image response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image server returned status %d", resp.StatusCode)
	}
	mimeType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mimeType, "image/") {
		return fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	body := io.LimitReader(resp.Body, maxImageBytes+1)
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}

	return p.store.Save(ctx, j.key, mimeType, bytes.NewReader(data))
}
