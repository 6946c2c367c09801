package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()

	expired := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "medrate_quotes_expired_total",
		Help: "expired quotes",
	}, []string{"job"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "medrate_sweep_seconds",
		Help: "sweep latency",
	})
	registry.MustRegister(expired, latency)

	expired.WithLabelValues("expire_quotes").Add(3)
	latency.Observe(0.2)
	return registry
}

func TestNewPusherDisabled(t *testing.T) {
	log := zap.NewNop()
	require.Nil(t, NewPusher(PushConfig{}, log))
	require.Nil(t, NewPusher(PushConfig{Exporter: ExporterRemoteWrite}, log))
	require.Nil(t, NewPusher(PushConfig{Exporter: ExporterRemoteWrite, Endpoint: "not a url"}, log))
	require.Nil(t, NewPusher(PushConfig{Exporter: "statsd", Endpoint: "http://localhost:1"}, log))

	require.IsType(t, &RemoteWritePusher{}, NewPusher(PushConfig{Exporter: ExporterRemoteWrite, Endpoint: "http://localhost:9090/api/v1/write"}, log))
	require.IsType(t, &PushgatewayPusher{}, NewPusher(PushConfig{Exporter: ExporterPushgateway, Endpoint: "http://localhost:9091", Job: "medrate"}, log))
}

func TestBuildRemoteWriteSeriesSkipsHistograms(t *testing.T) {
	families, err := newTestRegistry(t).Gather()
	require.NoError(t, err)

	series := buildRemoteWriteSeries(families, 1000)
	require.Len(t, series, 1)
	require.Equal(t, []prompb.Label{
		{Name: "__name__", Value: "medrate_quotes_expired_total"},
		{Name: "job", Value: "expire_quotes"},
	}, series[0].Labels)
	require.Equal(t, []prompb.Sample{{Value: 3, Timestamp: 1000}}, series[0].Samples)
}

func TestRemoteWritePusherSendsSnappyProtobuf(t *testing.T) {
	var (
		got     prompb.WriteRequest
		headers http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		raw, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, got.Unmarshal(raw))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pusher := NewRemoteWritePusher(srv.URL, "secret")
	pusher.now = func() time.Time { return time.UnixMilli(5000) }

	require.NoError(t, pusher.Push(context.Background(), newTestRegistry(t)))
	require.Equal(t, "snappy", headers.Get("Content-Encoding"))
	require.Equal(t, "Bearer secret", headers.Get("Authorization"))
	require.Len(t, got.Timeseries, 1)
	require.Equal(t, int64(5000), got.Timeseries[0].Samples[0].Timestamp)
}

func TestRemoteWritePusherReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), newTestRegistry(t))
	require.ErrorContains(t, err, "400")
}
