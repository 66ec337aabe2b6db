package subscribe

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	appLog "dashcal/internal/log"
)

// RedisSubscriber delivers pub/sub messages of a Redis channel derived from
// the event type and params.
type RedisSubscriber struct {
	client redis.UniversalClient
}

func NewRedisSubscriber(client redis.UniversalClient) *RedisSubscriber {
	return &RedisSubscriber{client: client}
}

// Channel builds the channel name: the event type followed by the params
// in key order, e.g. "weather/subscribe_forecast:entity_id=weather.home".
func Channel(eventType string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(eventType)
	for i, k := range keys {
		if i == 0 {
			b.WriteByte(':')
		} else {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

func (s *RedisSubscriber) Subscribe(ctx context.Context, eventType string, params map[string]string, cb func([]byte)) (Unsubscribe, error) {
	channel := Channel(eventType, params)
	ps := s.client.Subscribe(ctx, channel)

	// Wait for the subscription confirmation so failures surface here.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			cb([]byte(msg.Payload))
		}
	}()

	appLog.Debug("redis channel subscribed", "channel", channel)

	return func(ctx context.Context) error {
		err := ps.Close()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return err
	}, nil
}
