package httpserver

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsServer exposes the Prometheus endpoint on its own listener so
// scrapes never contend with cache traffic.
type MetricsServer struct {
	logger *zap.Logger
	server *http.Server
}

func NewMetricsServer(logger *zap.Logger) *MetricsServer {
	return &MetricsServer{logger: logger}
}

// Start begins listening on the given address. Blocks until shutdown.
func (m *MetricsServer) Start(addr string) error {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	m.server = &http.Server{
		Addr:    addr,
		Handler: router,
	}
	m.logger.Info("Metrics server starting", zap.String("addr", addr))
	return m.server.ListenAndServe()
}

// Stop gracefully shuts down the metrics server.
func (m *MetricsServer) Stop(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
