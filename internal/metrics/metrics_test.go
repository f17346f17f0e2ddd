package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Sends.WithLabelValues("delivered").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Sends.WithLabelValues("delivered")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Sends.WithLabelValues("delivered")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.OnlineUsers.Set(3)
	m.Notifications.WithLabelValues("like", "true").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "inboxd_online_users 3")
	assert.Contains(t, string(body), `inboxd_notifications_total{delivered="true",kind="like"} 1`)
}
