package library

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Observe("lend", nil, time.Millisecond)
	m.Observe("lend", opError("lend", "book", "B1", ErrExistingLoan, "on loan"), time.Millisecond)
	m.Observe("lend", storageError("lend", "member", "M1", errors.New("locked")), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("lend", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("lend", "existing_loan")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("lend", "storage")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rollbacks))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestMetricsReuseRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewMetrics(reg)
	second := NewMetrics(reg)

	first.Observe("sell", nil, 0)
	second.Observe("sell", nil, 0)

	require.Same(t, first.operations, second.operations)
	assert.Equal(t, 2.0, testutil.ToFloat64(first.operations.WithLabelValues("sell", "ok")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.Observe("cancel", nil, time.Second) })
}
