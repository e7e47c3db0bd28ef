package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/internal/api/handlers"
	"github.com/dome/adamant-tradebot/internal/api/middleware"
	"github.com/dome/adamant-tradebot/internal/websocket"
)

// SetupRoutes wires the HTTP status surface SPEC_FULL.md §13 names:
//
//	GET  /health
//	GET  /metrics
//	GET  /ws/stream
//	GET  /api/v1/orders
//	GET  /api/v1/orders/stats
//	GET  /api/v1/params
//	GET  /api/v1/balances
//	GET  /api/v1/rates
//	POST /api/v1/commands
//
// Middleware order is Recovery -> Logging -> CORS -> DebugAuth, applied
// to every route.
func SetupRoutes(h *handlers.Handler, hub *websocket.Hub, log *zap.SugaredLogger) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS)
	router.Use(middleware.DebugAuth)

	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWS(hub, w, r)
	}).Methods(http.MethodGet)

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/orders", h.GetOrders).Methods(http.MethodGet)
	v1.HandleFunc("/orders/stats", h.GetStats).Methods(http.MethodGet)
	v1.HandleFunc("/params", h.GetParams).Methods(http.MethodGet)
	v1.HandleFunc("/balances", h.GetBalances).Methods(http.MethodGet)
	v1.HandleFunc("/rates", h.GetRates).Methods(http.MethodGet)
	v1.HandleFunc("/commands", h.PostCommand).Methods(http.MethodPost)

	return router
}
