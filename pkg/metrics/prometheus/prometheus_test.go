package prometheus

import (
	"testing"
	"time"

	"fundwizard/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New("fundwizard")
	require.NoError(t, reg.Register(c))
}

func TestCollector_Submissions(t *testing.T) {
	c := New("fundwizard")

	c.RecordSubmission("contribution", metrics.OutcomeConcluded, 20*time.Millisecond)
	c.RecordSubmission("contribution", metrics.OutcomeConcluded, 30*time.Millisecond)
	c.RecordSubmission("contribution", metrics.OutcomeFailed, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.submissions.WithLabelValues("contribution", "concluded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.submissions.WithLabelValues("contribution", "failed")))
}

func TestCollector_CircuitAndInvalidation(t *testing.T) {
	c := New("fundwizard")

	c.RecordCircuitState("funds-api", metrics.CircuitOpen)
	c.RecordInvalidation("fund-list", true)
	c.RecordInvalidation("fund-list", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.circuitState.WithLabelValues("funds-api")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.circuitOpens.WithLabelValues("funds-api")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.invalidations.WithLabelValues("fund-list", "error")))
}

func TestCollector_ViewGets(t *testing.T) {
	c := New("fundwizard")

	c.RecordViewGet(true, 1, time.Millisecond)
	c.RecordViewGet(false, -1, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.viewGets.WithLabelValues("hit", "1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.viewGets.WithLabelValues("miss", "none")))
}
