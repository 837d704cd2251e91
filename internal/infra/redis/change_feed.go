package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"quizplay-service/internal/domain"
)

// ChangeFeed is a Redis pub/sub implementation of app.ChangeFeed, so change
// notifications reach subscribers on every instance.
type ChangeFeed struct {
	client *redis.Client
	prefix string
	log    *slog.Logger
}

func NewChangeFeed(client *redis.Client, log *slog.Logger) *ChangeFeed {
	if log == nil {
		log = slog.Default()
	}
	return &ChangeFeed{client: client, prefix: "quizplay:changes:", log: log}
}

func (f *ChangeFeed) Publish(ctx context.Context, topic string, change domain.Change) error {
	raw, err := json.Marshal(change)
	if err != nil {
		return err
	}
	if err := f.client.Publish(ctx, f.prefix+topic, raw).Err(); err != nil {
		return domain.NewStorageError("publish change", err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so no change
// published afterwards is missed.
func (f *ChangeFeed) Subscribe(ctx context.Context, topic string) (<-chan domain.Change, func(), error) {
	pubsub := f.client.Subscribe(ctx, f.prefix+topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, domain.NewStorageError("subscribe changes", err)
	}

	out := make(chan domain.Change, 8)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change domain.Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					f.log.Warn("dropping malformed change", "topic", topic, "error", err)
					continue
				}
				select {
				case out <- change:
				default:
					// Drop the oldest pending change rather than block the pub/sub reader.
					select {
					case <-out:
					default:
					}
					out <- change
				}
			}
		}
	}()

	return out, cancel, nil
}
