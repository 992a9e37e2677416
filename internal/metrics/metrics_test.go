package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBoolGauge(t *testing.T) {
	assert.Equal(t, 1.0, BoolGauge(true))
	assert.Equal(t, 0.0, BoolGauge(false))

	BurstActive.Set(BoolGauge(true))
	assert.Equal(t, 1.0, testutil.ToFloat64(BurstActive))
	BurstActive.Set(BoolGauge(false))
	assert.Equal(t, 0.0, testutil.ToFloat64(BurstActive))
}

func TestLabelledCounters(t *testing.T) {
	before := testutil.ToFloat64(SnapshotsTotal.WithLabelValues(TriggerAuto, ResultOK))
	SnapshotsTotal.WithLabelValues(TriggerAuto, ResultOK).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SnapshotsTotal.WithLabelValues(TriggerAuto, ResultOK)))

	PixelsFadedTotal.WithLabelValues(OutcomeDied).Add(3)
	assert.GreaterOrEqual(t, testutil.ToFloat64(PixelsFadedTotal.WithLabelValues(OutcomeDied)), 3.0)
}
