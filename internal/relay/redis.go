package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/leavend/genstudio/internal/infra"
)

// Redis relays events over a pub/sub channel.
type Redis struct {
	client  redis.UniversalClient
	channel string
	logger  infra.Logger
}

func NewRedis(client redis.UniversalClient, channel string, logger infra.Logger) *Redis {
	return &Redis{client: client, channel: channel, logger: infra.Component(logger, "relay.redis")}
}

func (r *Redis) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("relay: encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("relay: publish: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, handle func(Event)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("relay: subscribe %s: %w", r.channel, err)
	}
	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				r.logger.Warn().Err(err).Msg("dropping malformed event")
				continue
			}
			handle(evt)
		}
	}
}

// Close leaves the shared client open; its owner closes it.
func (r *Redis) Close() error { return nil }
