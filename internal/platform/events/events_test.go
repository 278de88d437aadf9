package events

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisStreamPublisher_Publish(t *testing.T) {
	_, client := setupTestRedis(t)
	pub := NewRedisStreamPublisher(client, "ward:events", 0)

	err := pub.Publish(context.Background(), New("patient.admitted", "T-100", map[string]interface{}{"name": "Diallo"}))
	require.NoError(t, err)

	msgs, err := client.XRange(context.Background(), "ward:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "patient.admitted", msgs[0].Values["type"])
	assert.Equal(t, "T-100", msgs[0].Values["subject"])
	assert.JSONEq(t, `{"name":"Diallo"}`, msgs[0].Values["data"].(string))
}

func TestRedisStreamPublisher_ServerDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()

	pub := NewRedisStreamPublisher(client, "ward:events", 100)
	err := pub.Publish(context.Background(), New("stock.alert", "Plaque LCP 4.5", nil))
	assert.Error(t, err)
}

func TestLogPublisher_WritesEvent(t *testing.T) {
	var buf bytes.Buffer
	pub := NewLogPublisher(zerolog.New(&buf))

	require.NoError(t, pub.Publish(context.Background(), New("stock.alert", "Vis Corticale", map[string]interface{}{"quantity": 3})))
	assert.Contains(t, buf.String(), `"event":"stock.alert"`)
	assert.Contains(t, buf.String(), `"quantity":3`)
}

func TestMulti_TriesAllAndReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	failing := PublisherFunc(func(context.Context, Event) error { calls++; return boom })
	counting := PublisherFunc(func(context.Context, Event) error { calls++; return nil })

	err := Multi(failing, counting).Publish(context.Background(), New("x", "y", nil))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestBestEffort_SwallowsErrors(t *testing.T) {
	var buf bytes.Buffer
	failing := PublisherFunc(func(context.Context, Event) error { return errors.New("redis down") })

	err := BestEffort(failing, zerolog.New(&buf)).Publish(context.Background(), New("patient.admitted", "T-1", nil))
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "event publish failed")
}
