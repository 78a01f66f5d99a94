package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	_ = m.Track("audit:append").End(nil)
	err := m.Track("audit:append").End(errors.New("boom"))

	assert.EqualError(t, err, "boom")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("audit:append", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("audit:append", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("audit:append")))
}

func TestSetOverrideScan(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetOverrideScan(12, 3)
	assert.Equal(t, 12.0, testutil.ToFloat64(m.scanned))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.redundant))

	var nilMetrics *Metrics
	nilMetrics.SetOverrideScan(1, 1)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
