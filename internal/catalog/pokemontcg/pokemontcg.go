package pokemontcg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vbonduro/cardledger/internal/catalog"
	"github.com/vbonduro/cardledger/internal/domain"
	"github.com/vbonduro/cardledger/internal/metrics"
)

const DefaultBaseURL = "https://api.pokemontcg.io/v2"

// cardFields limits search responses to what CardRef needs.
const cardFields = "id,name,number,rarity,set,images"

// card mirrors the subset of the Pokémon TCG API card object we read.
type card struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
	Rarity string `json:"rarity"`
	Set    struct {
		Name string `json:"name"`
	} `json:"set"`
	Images struct {
		Small string `json:"small"`
		Large string `json:"large"`
	} `json:"images"`
}

func (c card) toRef() domain.CardRef {
	img := c.Images.Small
	if img == "" {
		img = c.Images.Large
	}
	return domain.CardRef{
		ID:       c.ID,
		Name:     c.Name,
		ImageURL: img,
		SetName:  c.Set.Name,
		Number:   c.Number,
		Rarity:   c.Rarity,
	}
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ catalog.Catalog = (*Client)(nil)

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// WithRateLimit throttles outgoing requests to perSecond, allowing one
// second's worth of requests as a burst.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger.With("component", "pokemontcg") }
}

func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Resolve(ctx context.Context, cardID string) (*domain.CardRef, error) {
	if strings.TrimSpace(cardID) == "" {
		return nil, nil
	}

	var body struct {
		Data card `json:"data"`
	}
	found, err := c.get(ctx, "resolve", "/cards/"+url.PathEscape(cardID), nil, &body)
	if err != nil {
		return nil, err
	}
	if !found {
		c.logger.Debug("card not in catalog", "card_id", cardID)
		return nil, nil
	}

	ref := body.Data.toRef()
	return &ref, nil
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.CardRef, error) {
	query = sanitizeQuery(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = catalog.DefaultSearchLimit
	}

	params := url.Values{}
	params.Set("q", fmt.Sprintf(`name:"%s*"`, query))
	params.Set("pageSize", strconv.Itoa(limit))
	params.Set("orderBy", "name,set.releaseDate")
	params.Set("select", cardFields)

	var body struct {
		Data []card `json:"data"`
	}
	if _, err := c.get(ctx, "search", "/cards", params, &body); err != nil {
		return nil, err
	}

	refs := make([]domain.CardRef, 0, len(body.Data))
	for _, d := range body.Data {
		refs = append(refs, d.toRef())
	}
	return refs, nil
}

// get issues a GET and decodes a 200 body into out. It reports found=false on
// 404 and an error on every other non-200 status.
func (c *Client) get(ctx context.Context, op, path string, params url.Values, out any) (found bool, err error) {
	start := time.Now()
	result := metrics.ResultError
	defer func() {
		metrics.CatalogRequests.WithLabelValues(op, result).Inc()
		metrics.CatalogRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("catalog rate limit wait: %w", err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to call catalog: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close catalog response body", "error", err)
		}
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		result = metrics.ResultNotFound
		return false, nil
	default:
		return false, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	result = metrics.ResultOK
	return true, nil
}

// sanitizeQuery drops characters that would break out of the quoted name
// clause of the Lucene-style q parameter.
func sanitizeQuery(q string) string {
	q = strings.Map(func(r rune) rune {
		switch r {
		case '"', '\\', '*', ':':
			return -1
		}
		return r
	}, q)
	return strings.TrimSpace(q)
}
