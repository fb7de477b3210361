package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/resource-existence/internal/progress"
)

func batch() []progress.Event {
	now := time.Unix(1700000000, 0)
	return []progress.Event{
		{Key: "existence.document.index", Value: 1, TS: now},
		{Key: "existence.document.id", Value: 10, TS: now},
		{Key: "existence.document.index", Value: 2, TS: now.Add(time.Second)},
		{Key: "existence.document.id", Value: 20, TS: now.Add(time.Second)},
	}
}

func TestPrometheusSinkKeepsLatestValue(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), batch()))
	require.Equal(t, float64(2), testutil.ToFloat64(sink.values.WithLabelValues("existence.document.index")))
	require.Equal(t, float64(20), testutil.ToFloat64(sink.values.WithLabelValues("existence.document.id")))
	require.NoError(t, sink.Close(context.Background()))

	_, err = NewPrometheusSink(reg)
	require.Error(t, err, "duplicate registration should fail")
}

type fakeStatusWriter struct {
	puts []map[string]int64
	err  error
}

func (f *fakeStatusWriter) Put(_ context.Context, values map[string]int64) error {
	f.puts = append(f.puts, values)
	return f.err
}

func TestStoreSinkCollapsesBatch(t *testing.T) {
	t.Parallel()

	repo := &fakeStatusWriter{}
	sink := NewStoreSink(repo, nil)
	require.NoError(t, sink.Consume(context.Background(), batch()))
	require.Equal(t, []map[string]int64{{
		"existence.document.index": 2,
		"existence.document.id":    20,
	}}, repo.puts)

	require.NoError(t, sink.Consume(context.Background(), nil))
	require.Len(t, repo.puts, 1)
}

func TestStoreSinkPropagatesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeStatusWriter{err: errors.New("connection reset")}
	sink := NewStoreSink(repo, zap.NewNop())
	require.ErrorContains(t, sink.Consume(context.Background(), batch()), "persist 2 progress keys")
}

func TestSnapshotSink(t *testing.T) {
	t.Parallel()

	sink := NewSnapshotSink()
	require.NoError(t, sink.Consume(context.Background(), batch()))
	values, updated := sink.Snapshot()
	require.Equal(t, int64(2), values["existence.document.index"])
	require.Equal(t, time.Unix(1700000001, 0), updated)

	values["existence.document.index"] = 99
	again, _ := sink.Snapshot()
	require.Equal(t, int64(2), again["existence.document.index"])
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), batch()))
	require.Equal(t, 4, logs.FilterMessage("progress event").Len())
	require.NoError(t, sink.Close(context.Background()))
}
