package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/vbonduro/cardledger/internal/catalog"
	"github.com/vbonduro/cardledger/internal/domain"
	"github.com/vbonduro/cardledger/internal/ledger"
	"github.com/vbonduro/cardledger/internal/metrics"
	"github.com/vbonduro/cardledger/internal/store"
)

var (
	ErrCollectorNotFound  = errors.New("collector not found")
	ErrCollectorExists    = errors.New("collector name already taken")
	ErrInvalidName        = errors.New("collector name must not be empty")
	ErrCardNotFound       = errors.New("card not found in catalog")
	ErrCatalogUnavailable = errors.New("card catalog unavailable")
)

// collectorRepository is the subset of store.CollectorStore that InventoryService requires.
type collectorRepository interface {
	Create(ctx context.Context, name string) (*domain.Collector, error)
	GetByID(ctx context.Context, id string) (*domain.Collector, error)
	List(ctx context.Context) ([]*domain.Collector, error)
	Delete(ctx context.Context, id string) error
}

// inventoryRepository is the subset of store.InventoryStore that InventoryService requires.
type inventoryRepository interface {
	ledger.Store
	ListByOwner(ctx context.Context, ownerID string) ([]domain.StoredEntry, error)
	OwnerTotals(ctx context.Context) ([]domain.OwnerTotal, error)
}

// imagePrefetcher schedules background image downloads.
type imagePrefetcher interface {
	Enqueue(key, url string) bool
}

// Session is one collector's in-memory ledger. Its mutex makes the ledger
// single-writer.
type Session struct {
	mu        sync.Mutex
	collector domain.Collector
	ledger    *ledger.Ledger
	lastLoad  ledger.LoadResult
	reload    bool
}

func (s *Session) Collector() domain.Collector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collector
}

// LastLoad reports which stored rows were skipped when the ledger was hydrated.
func (s *Session) LastLoad() ledger.LoadResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLoad
}

type InventoryService struct {
	collectors collectorRepository
	inventory  inventoryRepository
	catalog    catalog.Catalog
	images     imagePrefetcher
	capacity   int
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

type Option func(*InventoryService)

// WithCapacity sets the ledger capacity for every collector.
func WithCapacity(n int) Option {
	return func(s *InventoryService) { s.capacity = n }
}

// WithImagePrefetcher enables background image downloads for added cards.
func WithImagePrefetcher(p imagePrefetcher) Option {
	return func(s *InventoryService) { s.images = p }
}

func NewInventoryService(
	collectors collectorRepository,
	inventory inventoryRepository,
	cat catalog.Catalog,
	logger *slog.Logger,
	opts ...Option,
) *InventoryService {
	s := &InventoryService{
		collectors: collectors,
		inventory:  inventory,
		catalog:    cat,
		capacity:   ledger.DefaultCapacity,
		logger:     logger,
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InventoryService) CreateCollector(ctx context.Context, name string) (*domain.Collector, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	existing, err := s.collectors.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range existing {
		if strings.EqualFold(c.Name, name) {
			return nil, fmt.Errorf("%w: %s", ErrCollectorExists, name)
		}
	}

	c, err := s.collectors.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	s.logger.Info("collector created", "collector_id", c.ID, "name", c.Name)
	return c, nil
}

// CollectorSummary pairs a collector with its holdings. Collectors whose
// ledger is loaded report the ledger's totals, which leave out rows hidden at
// load; the rest report what the store holds.
type CollectorSummary struct {
	*domain.Collector
	Entries  int
	Quantity int
	Capacity int
}

func (s *InventoryService) ListCollectors(ctx context.Context) ([]*CollectorSummary, error) {
	collectors, err := s.collectors.List(ctx)
	if err != nil {
		return nil, err
	}
	totals, err := s.inventory.OwnerTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to total inventories: %w", err)
	}
	byOwner := make(map[string]domain.OwnerTotal, len(totals))
	for _, t := range totals {
		byOwner[t.OwnerID] = t
	}

	summaries := make([]*CollectorSummary, 0, len(collectors))
	for _, c := range collectors {
		t := byOwner[c.ID]
		if entries, qty, ok := s.loadedTotals(c.ID); ok {
			t.Entries, t.Quantity = entries, qty
		}
		summaries = append(summaries, &CollectorSummary{
			Collector: c,
			Entries:   t.Entries,
			Quantity:  t.Quantity,
			Capacity:  s.capacity,
		})
	}
	return summaries, nil
}

func (s *InventoryService) GetCollector(ctx context.Context, id string) (*domain.Collector, error) {
	c, err := s.collectors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectorNotFound, id)
	}
	return c, nil
}

// DeleteCollector removes the collector with all of its inventory and drops
// its in-memory ledger.
func (s *InventoryService) DeleteCollector(ctx context.Context, id string) error {
	sess := s.session(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.collectors.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrCollectorNotFound) {
			s.discard(id, sess)
			return fmt.Errorf("%w: %s", ErrCollectorNotFound, id)
		}
		return err
	}
	s.discard(id, sess)
	s.logger.Info("collector deleted", "collector_id", id)
	return nil
}

// OpenLedger returns the collector's session, hydrating its ledger from the
// store on first use or after a load that could not reach the catalog.
func (s *InventoryService) OpenLedger(ctx context.Context, collectorID string) (*Session, error) {
	sess := s.session(collectorID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.hydrate(ctx, collectorID, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// InventoryView is a read-only snapshot of a collector's ledger.
type InventoryView struct {
	Collector domain.Collector
	Entries   []domain.InventoryEntry
	Total     int
	Capacity  int
	Remaining int
	Full      bool
	Skipped   int
}

func (s *InventoryService) Inventory(ctx context.Context, collectorID string) (*InventoryView, error) {
	var view *InventoryView
	err := s.withLedger(ctx, collectorID, func(sess *Session) error {
		l := sess.ledger
		view = &InventoryView{
			Collector: sess.collector,
			Entries:   l.Entries(),
			Total:     l.TotalQuantity(),
			Capacity:  l.Capacity(),
			Remaining: l.Remaining(),
			Full:      !l.CanAdd(1),
			Skipped:   sess.lastLoad.Skipped(),
		}
		return nil
	})
	return view, err
}

// AddCard resolves cardID in the catalog and adds qty copies to the
// collector's ledger. Capacity is checked before the catalog is consulted.
func (s *InventoryService) AddCard(ctx context.Context, collectorID, cardID string, qty int) (domain.InventoryEntry, error) {
	cardID = strings.TrimSpace(cardID)

	var entry domain.InventoryEntry
	err := s.withLedger(ctx, collectorID, func(sess *Session) error {
		l := sess.ledger
		if qty < 1 {
			return ledger.ErrInvalidQuantity
		}
		if !l.CanAdd(qty) {
			return fmt.Errorf("%w: %d remaining", ledger.ErrCapacityExceeded, l.Remaining())
		}

		card, err := s.catalog.Resolve(ctx, cardID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
		if card == nil {
			return fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
		}

		// The card resolves now but its stored row was hidden at load; reload
		// so the add merges into that row instead of inserting a duplicate.
		if _, ok := l.EntryForCard(card.ID); !ok && sess.lastLoad.WasSkipped(card.ID) {
			sess.reload = true
			if err := s.hydrate(ctx, collectorID, sess); err != nil {
				return err
			}
			l = sess.ledger
			if !l.CanAdd(qty) {
				return fmt.Errorf("%w: %d remaining", ledger.ErrCapacityExceeded, l.Remaining())
			}
		}

		entry, err = l.AddOrMerge(ctx, *card, qty)
		return err
	})
	metrics.LedgerOperations.WithLabelValues("add", resultFor(err)).Inc()
	if err != nil {
		s.logger.Warn("add card failed", "collector_id", collectorID, "card_id", cardID, "quantity", qty, "error", err)
		return domain.InventoryEntry{}, err
	}

	s.logger.Info("card added", "collector_id", collectorID, "card_id", cardID, "entry_id", entry.ID, "quantity", entry.Quantity)
	if s.images != nil {
		s.images.Enqueue(entry.Card.ID, entry.Card.ImageURL)
	}
	return entry, nil
}

// Decrement removes one copy from an entry, dropping the entry at zero.
func (s *InventoryService) Decrement(ctx context.Context, collectorID, entryID string) (ledger.DecrementOutcome, error) {
	var outcome ledger.DecrementOutcome
	err := s.withLedger(ctx, collectorID, func(sess *Session) error {
		var err error
		outcome, err = sess.ledger.Decrement(ctx, entryID)
		return err
	})
	metrics.LedgerOperations.WithLabelValues("decrement", resultFor(err)).Inc()
	if err != nil {
		s.logger.Warn("decrement failed", "collector_id", collectorID, "entry_id", entryID, "error", err)
		return ledger.DecrementOutcome{}, err
	}

	s.logger.Info("entry decremented", "collector_id", collectorID, "entry_id", entryID, "outcome", outcome.Kind.String(), "quantity", outcome.Quantity)
	return outcome, nil
}

// SearchCards queries the catalog on behalf of a collector. A full ledger
// refuses to search since nothing found could be added.
func (s *InventoryService) SearchCards(ctx context.Context, collectorID, query string) ([]domain.CardRef, error) {
	err := s.withLedger(ctx, collectorID, func(sess *Session) error {
		if !sess.ledger.CanAdd(1) {
			return fmt.Errorf("%w: ledger is full", ledger.ErrCapacityExceeded)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cards, err := s.catalog.Search(ctx, query, catalog.DefaultSearchLimit)
	if err != nil {
		s.logger.Warn("card search failed", "collector_id", collectorID, "query", query, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	return cards, nil
}

// Card looks a single card up in the catalog.
func (s *InventoryService) Card(ctx context.Context, cardID string) (*domain.CardRef, error) {
	card, err := s.catalog.Resolve(ctx, strings.TrimSpace(cardID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	if card == nil {
		return nil, fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
	}
	return card, nil
}

// Capacity is the ledger capacity applied to every collector.
func (s *InventoryService) Capacity() int { return s.capacity }

// loadedTotals returns the entry count and quantity of a loaded ledger.
func (s *InventoryService) loadedTotals(collectorID string) (entries, qty int, ok bool) {
	s.mu.Lock()
	sess, found := s.sessions[collectorID]
	s.mu.Unlock()
	if !found {
		return 0, 0, false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.ledger == nil {
		return 0, 0, false
	}
	return len(sess.ledger.Entries()), sess.ledger.TotalQuantity(), true
}

// Sessions reports how many ledgers are held in memory.
func (s *InventoryService) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *InventoryService) withLedger(ctx context.Context, collectorID string, fn func(*Session) error) error {
	sess := s.session(collectorID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.hydrate(ctx, collectorID, sess); err != nil {
		return err
	}
	return fn(sess)
}

// hydrate loads the ledger if it has not been loaded or the previous load
// left rows unresolved. The caller holds sess.mu.
func (s *InventoryService) hydrate(ctx context.Context, collectorID string, sess *Session) error {
	if sess.ledger != nil && !sess.reload {
		return nil
	}

	c, err := s.collectors.GetByID(ctx, collectorID)
	if err != nil {
		return err
	}
	if c == nil {
		s.dropSession(collectorID)
		return fmt.Errorf("%w: %s", ErrCollectorNotFound, collectorID)
	}

	rows, err := s.inventory.ListByOwner(ctx, collectorID)
	if err != nil {
		return &ledger.StoreError{Op: "list", Err: err}
	}

	l := ledger.New(collectorID, s.inventory, ledger.WithCapacity(s.capacity))
	res := l.Load(ctx, rows, s.catalog.Resolve)

	if n := len(res.NotFound); n > 0 {
		metrics.LedgerLoadSkipped.WithLabelValues(metrics.ResultNotFound).Add(float64(n))
		s.logger.Warn("stored cards missing from catalog", "collector_id", collectorID, "card_ids", res.NotFound)
	}
	if n := len(res.Unresolved); n > 0 {
		metrics.LedgerLoadSkipped.WithLabelValues(metrics.ResultError).Add(float64(n))
		s.logger.Warn("stored cards could not be resolved", "collector_id", collectorID, "card_ids", res.Unresolved)
	}
	s.logger.Info("ledger loaded", "collector_id", collectorID, "entries", res.Loaded, "skipped", res.Skipped(), "total", l.TotalQuantity())

	sess.collector = *c
	sess.ledger = l
	sess.lastLoad = res
	sess.reload = len(res.Unresolved) > 0
	return nil
}

func (s *InventoryService) session(collectorID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[collectorID]
	if !ok {
		sess = &Session{}
		s.sessions[collectorID] = sess
		metrics.LedgerSessions.Set(float64(len(s.sessions)))
	}
	return sess
}

// discard forgets a session's ledger so anyone still holding the pointer
// re-hydrates, and finds the collector gone. The caller holds sess.mu.
func (s *InventoryService) discard(collectorID string, sess *Session) {
	sess.ledger = nil
	sess.reload = false
	sess.lastLoad = ledger.LoadResult{}
	s.dropSession(collectorID)
}

func (s *InventoryService) dropSession(collectorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, collectorID)
	metrics.LedgerSessions.Set(float64(len(s.sessions)))
}

func resultFor(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ledger.ErrCapacityExceeded):
		return metrics.ResultCapacity
	case errors.Is(err, ledger.ErrInvalidQuantity):
		return metrics.ResultInvalid
	case errors.Is(err, ledger.ErrEntryNotFound),
		errors.Is(err, ErrCardNotFound),
		errors.Is(err, ErrCollectorNotFound):
		return metrics.ResultNotFound
	default:
		return metrics.ResultError
	}
}
