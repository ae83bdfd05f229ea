package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// lastGoodPrefix namespaces the last-known-good query cache in the KV.
const lastGoodPrefix = "sipoma:lastgood:"

// ClientConfig tunes the HTTP record-store client.
type ClientConfig struct {
	BaseURL string
	Token   string
	// Timeout bounds every request; the reference behavior is 30s.
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
	// CacheTTL bounds how long a stale last-known-good query result may
	// be served after a timeout.
	CacheTTL time.Duration
}

// Client talks to the hosted record-storage service over HTTP, with a
// websocket change feed for subscriptions. Failed or timed-out queries
// fall back to the last known-good cached result for that query key,
// so transient network hiccups never flicker the caller to "no data".
type Client struct {
	http   *resty.Client
	cfg    ClientConfig
	kv     KV
	logger *zap.Logger

	mu       sync.Mutex
	handlers map[string][]subscriberRef
	nextSub  int
	feedRun  bool
	feedStop context.CancelFunc
}

type subscriberRef struct {
	id      int
	handler ChangeHandler
}

// NewClient builds the store client. kv may be nil to disable the
// last-known-good fallback.
func NewClient(cfg ClientConfig, kv KV, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryWait * 4).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		httpClient.SetHeader("Authorization", "Bearer "+cfg.Token)
	}
	return &Client{
		http:     httpClient,
		cfg:      cfg,
		kv:       kv,
		logger:   logger,
		handlers: make(map[string][]subscriberRef),
	}
}

type listResponse struct {
	Items []Record `json:"items"`
}

// filterString renders the filter in the store's query syntax with a
// stable field order, so equal filters share one cache key.
func filterString(filter Filter) string {
	if len(filter) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := filter[k].(type) {
		case Like:
			parts = append(parts, fmt.Sprintf("%s~%q", k, string(v)))
		default:
			parts = append(parts, fmt.Sprintf("%s=%q", k, fmt.Sprint(v)))
		}
	}
	return strings.Join(parts, " && ")
}

func lastGoodKey(collection, filter, sortExpr string) string {
	return lastGoodPrefix + collection + ":" + filter + "|" + sortExpr
}

// Query lists records. A missing collection is an empty result, not an
// error. Transient failures degrade to the cached last-known-good value
// for this query key when one exists.
func (c *Client) Query(ctx context.Context, collection string, filter Filter, sortExpr string) ([]Record, error) {
	fs := filterString(filter)
	req := c.http.R().SetContext(ctx).SetResult(&listResponse{})
	if fs != "" {
		req.SetQueryParam("filter", fs)
	}
	if sortExpr != "" {
		req.SetQueryParam("sort", sortExpr)
	}

	resp, err := req.Get("/api/collections/" + collection + "/records")
	if err != nil {
		return c.queryFallback(ctx, collection, fs, sortExpr, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return []Record{}, nil
	}
	if resp.IsError() {
		return c.queryFallback(ctx, collection, fs, sortExpr,
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}

	items := resp.Result().(*listResponse).Items
	if items == nil {
		items = []Record{}
	}
	c.cacheLastGood(ctx, collection, fs, sortExpr, items)
	return items, nil
}

func (c *Client) cacheLastGood(ctx context.Context, collection, filter, sortExpr string, items []Record) {
	if c.kv == nil {
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := c.kv.Set(ctx, lastGoodKey(collection, filter, sortExpr), string(data), c.cfg.CacheTTL); err != nil {
		c.logger.Debug("Failed to cache query result", zap.Error(err))
	}
}

func (c *Client) queryFallback(ctx context.Context, collection, filter, sortExpr string, cause error) ([]Record, error) {
	if c.kv != nil {
		if raw, err := c.kv.Get(ctx, lastGoodKey(collection, filter, sortExpr)); err == nil {
			var items []Record
			if json.Unmarshal([]byte(raw), &items) == nil {
				c.logger.Warn("Query failed, serving last known-good result",
					zap.String("collection", collection),
					zap.Error(cause),
				)
				return items, nil
			}
		}
	}
	return nil, fmt.Errorf("query %s: %w: %v", collection, ErrTransient, cause)
}

// Invalidate drops every cached query result for the collection. Called
// when a change notification arrives, so a scheduled refresh cannot be
// satisfied from a stale cache entry.
func (c *Client) Invalidate(ctx context.Context, collection string) {
	if c.kv == nil {
		return
	}
	keys, err := c.kv.ScanKeys(ctx, lastGoodPrefix+collection+":*")
	if err != nil || len(keys) == 0 {
		return
	}
	if err := c.kv.Del(ctx, keys...); err != nil {
		c.logger.Debug("Failed to invalidate query cache",
			zap.String("collection", collection),
			zap.Error(err),
		)
	}
}

// Create inserts a record and returns it with its assigned id.
func (c *Client) Create(ctx context.Context, collection string, fields Record) (Record, error) {
	var out Record
	resp, err := c.http.R().SetContext(ctx).SetBody(fields).SetResult(&out).
		Post("/api/collections/" + collection + "/records")
	if err != nil {
		return nil, fmt.Errorf("create %s: %w: %v", collection, ErrTransient, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("create %s: status %d: %s", collection, resp.StatusCode(), resp.String())
	}
	return out, nil
}

// Update patches a record's fields.
func (c *Client) Update(ctx context.Context, collection, id string, fields Record) (Record, error) {
	var out Record
	resp, err := c.http.R().SetContext(ctx).SetBody(fields).SetResult(&out).
		Patch("/api/collections/" + collection + "/records/" + id)
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w: %v", collection, id, ErrTransient, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("update %s/%s: status %d: %s", collection, id, resp.StatusCode(), resp.String())
	}
	return out, nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	resp, err := c.http.R().SetContext(ctx).
		Delete("/api/collections/" + collection + "/records/" + id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w: %v", collection, id, ErrTransient, err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("delete %s/%s: status %d", collection, id, resp.StatusCode())
	}
	return nil
}

// Subscribe registers a change handler for the collection. The first
// subscription starts the websocket feed; it reconnects with
// exponential backoff until the client is closed.
func (c *Client) Subscribe(ctx context.Context, collection string, handler ChangeHandler) (func(), error) {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.handlers[collection] = append(c.handlers[collection], subscriberRef{id: id, handler: handler})
	if !c.feedRun {
		feedCtx, cancel := context.WithCancel(context.Background())
		c.feedStop = cancel
		c.feedRun = true
		go c.runFeed(feedCtx)
	}
	c.mu.Unlock()

	unsubscribe := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		refs := c.handlers[collection]
		for i, ref := range refs {
			if ref.id == id {
				c.handlers[collection] = append(refs[:i], refs[i+1:]...)
				break
			}
		}
	}
	return unsubscribe, nil
}

// Close stops the change feed.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feedStop != nil {
		c.feedStop()
		c.feedRun = false
		c.feedStop = nil
	}
}

// feedURL converts the HTTP base URL into the realtime websocket URL.
func (c *Client) feedURL() (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/realtime"
	return u.String(), nil
}

func (c *Client) runFeed(ctx context.Context) {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.consumeFeed(ctx); err != nil {
			c.logger.Warn("Change feed disconnected",
				zap.Error(err),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
		} else {
			backoff = time.Second
		}
	}
}

func (c *Client) consumeFeed(ctx context.Context) error {
	feedURL, err := c.feedURL()
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, feedURL, header)
	if err != nil {
		return fmt.Errorf("dial change feed: %w", err)
	}
	defer conn.Close()

	// Close the socket when the feed context ends so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	c.logger.Info("Change feed connected", zap.String("url", feedURL))

	for {
		var event ChangeEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read change feed: %w", err)
		}
		c.dispatch(event)
	}
}

func (c *Client) dispatch(event ChangeEvent) {
	c.mu.Lock()
	refs := make([]subscriberRef, len(c.handlers[event.Collection]))
	copy(refs, c.handlers[event.Collection])
	c.mu.Unlock()

	for _, ref := range refs {
		ref.handler(event)
	}
}
