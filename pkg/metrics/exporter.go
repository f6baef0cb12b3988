package metrics

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/downfa11-org/go-streams/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StartMetricsServer serves g on :port/metrics in the background. The returned
// server can be shut down by the caller.
func StartMetricsServer(port int, g prometheus.Gatherer) *http.Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		util.Info("prometheus exporter listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Error("failed to start metrics server", "error", err)
		}
	}()
	return srv
}

