package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const feedChannelPrefix = "docstore:changes:"

// Feed fans document change notifications out over Redis pub/sub so that
// every API process sees writes made by the others.
type Feed struct {
	client *redis.Client
	logger *slog.Logger
}

// NewFeed constructs a Feed on top of client.
func NewFeed(client *redis.Client, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{client: client, logger: logger.With(slog.String("component", "docstore_feed"))}
}

func feedChannel(collection string) string {
	return feedChannelPrefix + collection
}

// Publish broadcasts changes. Notifications are best effort: a committed write
// is never rolled back because its notification failed.
func (f *Feed) Publish(ctx context.Context, changes []Change) error {
	if f == nil || f.client == nil || len(changes) == 0 {
		return nil
	}
	pipe := f.client.Pipeline()
	for _, change := range changes {
		payload, err := json.Marshal(change)
		if err != nil {
			return fmt.Errorf("docstore: encode change: %w", err)
		}
		pipe.Publish(ctx, feedChannel(change.Collection), payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("docstore: publish changes: %w", err)
	}
	return nil
}

// Subscribe listens for changes on collection. The returned subscription has
// no snapshot; stores fill it in.
func (f *Feed) Subscribe(ctx context.Context, collection string) (*Subscription, error) {
	if f == nil || f.client == nil {
		return nil, fmt.Errorf("docstore: change feed not configured")
	}
	pubsub := f.client.Subscribe(ctx, feedChannel(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("docstore: subscribe %s: %w", collection, err)
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	sub := newSubscription(nil, 0, func() {
		close(done)
		<-exited
		if err := pubsub.Close(); err != nil {
			f.logger.Debug("close pubsub", slog.String("collection", collection), slog.Any("error", err))
		}
	})

	messages := pubsub.Channel()
	go func() {
		defer close(exited)
		for {
			select {
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					f.logger.Debug("decode change", slog.String("collection", collection), slog.Any("error", err))
					continue
				}
				sub.offer(change)
			}
		}
	}()
	go releaseOnDone(ctx, sub, done)
	return sub, nil
}
