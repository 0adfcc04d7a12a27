package metricsvc

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/huddle/core/push"
	"github.com/trezcool/huddle/core/video"
)

type fixedClients int

func (c fixedClients) Clients() int { return int(c) }

func TestPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg, fixedClients(3))

	m.RecordDelivery(push.ResultSent)
	m.RecordDelivery(push.ResultSent)
	m.RecordDelivery(push.ResultExpired)
	assert.Equal(t, 2.0, promtest.ToFloat64(m.pushDeliveries.WithLabelValues(push.ResultSent)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.pushDeliveries.WithLabelValues(push.ResultExpired)))

	m.RecordSync(video.SyncResult{Created: 4, Updated: 2, Skipped: 1}, nil)
	m.RecordSync(video.SyncResult{Created: 1}, errors.New("quota exceeded"))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.videoSyncs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.videoSyncs.WithLabelValues("error")))
	assert.Equal(t, 5.0, promtest.ToFloat64(m.videoSyncItems.WithLabelValues("created")))

	m.ObserveHTTP("GET", "/api/plays", 200, 15*time.Millisecond)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/plays", "200")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var gauge float64
	for _, f := range families {
		if f.GetName() == "huddle_chat_live_clients" {
			gauge = f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, 3.0, gauge)
}
