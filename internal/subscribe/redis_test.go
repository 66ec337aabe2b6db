package subscribe

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel(t *testing.T) {
	assert.Equal(t, "updates", Channel("updates", nil))
	assert.Equal(t,
		"weather/subscribe_forecast:entity_id=weather.home,forecast_type=daily",
		Channel("weather/subscribe_forecast", map[string]string{"forecast_type": "daily", "entity_id": "weather.home"}),
	)
}

func TestRedisSubscriberDeliversPayloads(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	got := make(chan string, 1)
	s := NewRedisSubscriber(client)
	params := map[string]string{"entity_id": "weather.home"}

	ctx := context.Background()
	unsub, err := s.Subscribe(ctx, "weather/subscribe_forecast", params, func(p []byte) { got <- string(p) })
	require.NoError(t, err)

	mr.Publish(Channel("weather/subscribe_forecast", params), `{"type":"daily","forecast":[]}`)

	select {
	case p := <-got:
		assert.JSONEq(t, `{"type":"daily","forecast":[]}`, p)
	case <-time.After(2 * time.Second):
		t.Fatal("payload not delivered")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	assert.NoError(t, unsub(stopCtx))
}

func TestRedisSubscriberFailsWithoutServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedisSubscriber(client).Subscribe(ctx, "x", nil, func([]byte) {})
	assert.Error(t, err)
}
