package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultEndpoint serves the community price feed.
const DefaultEndpoint = "http://serverp.furtorch.heili.tech/get"

// FromRemote marks prices taken from the price feed.
const FromRemote = "remote"

const (
	feedAgent   = "TorchLedger/price-updater"
	feedTimeout = 5 * time.Second
	maxFeedSize = 32 << 20
)

// PriceUpdate is one entry of the price feed.
type PriceUpdate struct {
	Price      float64 `json:"price"`
	LastUpdate float64 `json:"last_update"`
}

// Apply copies u onto it and reports whether the price or its timestamp moved.
// An unchanged entry keeps its origin.
func (u PriceUpdate) Apply(it *Item) bool {
	if it.Price == u.Price && it.LastUpdate == u.LastUpdate {
		return false
	}
	it.Price, it.LastUpdate, it.From = u.Price, u.LastUpdate, FromRemote
	return true
}

// ApplyRaw is Apply for an undecoded table row, so fields Item does not model
// survive a rewrite of the file.
func (u PriceUpdate) ApplyRaw(row map[string]any) bool {
	if sameNumber(row["price"], u.Price) && sameNumber(row["last_update"], u.LastUpdate) {
		return false
	}
	row["price"], row["last_update"], row["from"] = u.Price, u.LastUpdate, FromRemote
	return true
}

func sameNumber(v any, f float64) bool {
	switch n := v.(type) {
	case float64:
		return n == f
	case json.Number:
		g, err := n.Float64()
		return err == nil && g == f
	}
	return false
}

// Feed is the remote price service. The zero value uses DefaultEndpoint,
// http.DefaultClient and a five second timeout.
type Feed struct {
	Endpoint string
	Timeout  time.Duration
	Client   *http.Client
}

// Fetch downloads the feed, keyed by decimal item id.
func (f Feed) Fetch(ctx context.Context) (map[string]PriceUpdate, error) {
	endpoint := f.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = feedTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("price feed %q: %w", endpoint, err)
	}
	req.Header.Set("User-Agent", feedAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price feed answered %s", resp.Status)
	}

	updates := make(map[string]PriceUpdate)
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFeedSize)).Decode(&updates); err != nil {
		return nil, fmt.Errorf("price feed body: %w", err)
	}
	return updates, nil
}

// Refresh fetches f and merges it into t. It returns the number of entries
// changed, the number of feed ids t knows, and the feed size.
func (t *Table) Refresh(ctx context.Context, f Feed) (changed, matched, remote int, err error) {
	updates, err := f.Fetch(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	changed, matched = t.Merge(updates)
	return changed, matched, len(updates), nil
}
