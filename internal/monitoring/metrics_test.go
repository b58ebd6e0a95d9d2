package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestIndependentRegistries(t *testing.T) {
	// Two collectors must not collide on metric registration.
	a := NewMetrics()
	b := NewMetrics()
	assert.NotSame(t, a.Registry(), b.Registry())
}

func TestRecordTransaction(t *testing.T) {
	m := NewMetrics()

	m.RecordTransaction("ok", 128, false)
	m.RecordTransaction("ok", 64, false)
	m.RecordTransaction("dead_target", 0, true)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.TransactionsTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TransactionsTotal.WithLabelValues("dead_target")))

	snap := m.GetSnapshot()
	assert.Equal(t, int64(3), snap.TotalTransactions)
	assert.Equal(t, int64(1), snap.TotalFailures)
}

func TestRecordOnewayDroppedAndDeaths(t *testing.T) {
	m := NewMetrics()

	m.RecordOnewayDropped()
	m.RecordDeathNotification()
	m.RecordDeathNotification()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.OnewayDropped))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DeathNotifications))

	snap := m.GetSnapshot()
	assert.Equal(t, int64(1), snap.OnewayDropped)
	assert.Equal(t, int64(2), snap.DeathsDelivered)
}
