package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppsTotalTracksLabeledGauges(t *testing.T) {
	AppsTotal.WithLabelValues("running").Set(3)

	m := &dto.Metric{}
	require.NoError(t, AppsTotal.WithLabelValues("running").Write(m))
	assert.Equal(t, 3.0, m.GetGauge().GetValue())
}

func TestRestartsTotalIncrements(t *testing.T) {
	RestartsTotal.WithLabelValues("app-metrics-test").Add(2)

	m := &dto.Metric{}
	require.NoError(t, RestartsTotal.WithLabelValues("app-metrics-test").Write(m))
	assert.Equal(t, 2.0, m.GetCounter().GetValue())
}

func TestWebSocketGaugeAndCounterAreIndependentOfLabels(t *testing.T) {
	WebSocketConnectionsActive.Set(5)
	WebSocketMessagesSentTotal.Inc()

	gaugeMetric := &dto.Metric{}
	require.NoError(t, WebSocketConnectionsActive.Write(gaugeMetric))
	assert.Equal(t, 5.0, gaugeMetric.GetGauge().GetValue())

	counterMetric := &dto.Metric{}
	require.NoError(t, WebSocketMessagesSentTotal.Write(counterMetric))
	assert.GreaterOrEqual(t, counterMetric.GetCounter().GetValue(), 1.0)
}
