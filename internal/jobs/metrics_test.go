package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	if err := c.Write(&out); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return out.GetCounter().GetValue()
}

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("quotes:expire").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("quotes:expire").End(boom), boom)

	assert.Equal(t, 1.0, value(t, m.runs.WithLabelValues("quotes:expire", "success")))
	assert.Equal(t, 1.0, value(t, m.runs.WithLabelValues("quotes:expire", "failure")))
	assert.Equal(t, 1.0, value(t, m.failures.WithLabelValues("quotes:expire")))
}

func TestDomainCountersIgnoreNonPositive(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddCommissions("created", 4)
	m.AddCommissions("created", 0)
	m.AddExpiredQuotes(-1)
	m.AddExpiredQuotes(2)

	assert.Equal(t, 4.0, value(t, m.commissions.WithLabelValues("created")))
	assert.Equal(t, 2.0, value(t, m.expired))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddCommissions("created", 1)
	m.AddExpiredQuotes(1)
	assert.NoError(t, m.Track("x").End(nil))
}
