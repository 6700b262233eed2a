package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/feedstream/pkg/domain"
)

// subscriptionsKey is the fixed store key for the subscription list
const subscriptionsKey = "subscriptions"

// defaultImportCategory is assigned to imported entries without one
const defaultImportCategory = "Imported"

// Load restores the persisted subscription list and refreshes it. A
// missing or empty list is not an error, the engine just starts empty.
func (e *Engine) Load(ctx context.Context) error {
	raw, ok, err := e.store.Get(ctx, subscriptionsKey)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	if !ok || raw == "" {
		return nil
	}

	var subs []domain.Subscription
	if err := json.Unmarshal([]byte(raw), &subs); err != nil {
		return fmt.Errorf("decode subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	lgr.Printf("[INFO] restoring %d subscriptions", len(subs))
	res := e.RefreshFeeds(ctx, subs, false)
	for _, fe := range res.Errors {
		lgr.Printf("[WARN] restore skipped feed %s: %s", fe.URL, fe.Msg)
	}
	return nil
}

// Import reads a JSON array of subscriptions and refreshes the new set.
// Missing tags default to empty, missing category to "Imported", missing
// color to a random one. Entries without url or name reject the file.
func (e *Engine) Import(ctx context.Context, r io.Reader) (Result, error) {
	var subs []domain.Subscription
	if err := json.NewDecoder(r).Decode(&subs); err != nil {
		return Result{}, fmt.Errorf("invalid import file: %w", err)
	}

	for i := range subs {
		if subs[i].URL == "" || subs[i].Name == "" {
			return Result{}, fmt.Errorf("invalid import file: entry %d misses url or name", i)
		}
		if subs[i].Tags == nil {
			subs[i].Tags = []string{}
		}
		if subs[i].Category == "" {
			subs[i].Category = defaultImportCategory
		}
		if subs[i].Color == "" {
			subs[i].Color = randColor()
		}
	}

	lgr.Printf("[INFO] importing %d subscriptions", len(subs))
	return e.RefreshFeeds(ctx, subs, false), nil
}

// Export writes the subscription list as an indented JSON array, all
// fields always present
func (e *Engine) Export(w io.Writer) error {
	e.mu.RLock()
	subs := make([]domain.Subscription, 0, len(e.feeds))
	for i := range e.feeds {
		sub := e.feeds[i].Subscription()
		if sub.Tags == nil {
			sub.Tags = []string{}
		}
		subs = append(subs, sub)
	}
	e.mu.RUnlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(subs)
}

// persist writes the subscription-identifying subset to the store,
// articles are never persisted
func (e *Engine) persist(ctx context.Context) {
	e.mu.RLock()
	subs := make([]domain.Subscription, 0, len(e.feeds))
	for i := range e.feeds {
		subs = append(subs, e.feeds[i].Subscription())
	}
	e.mu.RUnlock()

	data, err := json.Marshal(subs)
	if err != nil {
		lgr.Printf("[ERROR] failed to encode subscriptions: %v", err)
		return
	}
	if err := e.store.Set(ctx, subscriptionsKey, string(data)); err != nil {
		lgr.Printf("[ERROR] failed to persist subscriptions: %v", err)
	}
}
