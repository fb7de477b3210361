package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	data    map[string]string
	ttls    map[string]time.Duration
	failErr error
	closed  bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeClient) Get(_ context.Context, key string) *redis.StringCmd {
	if f.failErr != nil {
		return redis.NewStringResult("", f.failErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeClient) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	if f.failErr != nil {
		return redis.NewStatusResult("", f.failErr)
	}
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, f.failErr)
}

func (f *fakeClient) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.failErr)
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestCheckpointRoundTrip(t *testing.T) {
	t.Parallel()
	c := newFakeClient()
	cp := newWithClient(c, "existence:", 0)
	ctx := context.Background()

	_, err := cp.Load(ctx)
	require.ErrorIs(t, err, ErrNoCheckpoint)

	require.NoError(t, cp.Save(ctx, 120))
	assert.Equal(t, "120", c.data["existence:sweep:position"])
	assert.Equal(t, DefaultTTL, c.ttls["existence:sweep:position"])

	pos, err := cp.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 120, pos)

	require.NoError(t, cp.Clear(ctx))
	_, err = cp.Load(ctx)
	require.ErrorIs(t, err, ErrNoCheckpoint)

	require.NoError(t, cp.Ping(ctx))
	require.NoError(t, cp.Close())
	assert.True(t, c.closed)
}

func TestCheckpointErrors(t *testing.T) {
	t.Parallel()
	c := newFakeClient()
	c.failErr = errors.New("connection refused")
	cp := newWithClient(c, "", time.Hour)
	ctx := context.Background()

	_, err := cp.Load(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoCheckpoint)
	require.Error(t, cp.Save(ctx, 1))
	require.Error(t, cp.Clear(ctx))
	require.Error(t, cp.Ping(ctx))
}

func TestCheckpointCorruptValue(t *testing.T) {
	t.Parallel()
	c := newFakeClient()
	c.data["sweep:position"] = "ten"
	cp := newWithClient(c, "", time.Hour)

	_, err := cp.Load(context.Background())
	require.ErrorContains(t, err, "decode checkpoint")
}

func TestNoop(t *testing.T) {
	t.Parallel()
	var n Noop
	_, err := n.Load(context.Background())
	require.ErrorIs(t, err, ErrNoCheckpoint)
	require.NoError(t, n.Save(context.Background(), 3))
	require.NoError(t, n.Clear(context.Background()))
}
