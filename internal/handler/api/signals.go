package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"CryptoScanner/internal/domain/models"
	domrepo "CryptoScanner/internal/domain/repository"
	icache "CryptoScanner/internal/service/cache"
	"CryptoScanner/internal/service/metrics"
	xhttp "CryptoScanner/pkg/http"
	applogger "CryptoScanner/pkg/logger"
)

// SignalsHandler exposes the reporting API: latest signals, per-symbol
// breakdown and recent events.
type SignalsHandler struct {
	signals domrepo.SignalStore
	events  domrepo.EventStore
	cache   icache.BytesCache
	l       *applogger.Logger
}

func NewSignalsHandler(signals domrepo.SignalStore, events domrepo.EventStore, l *applogger.Logger) *SignalsHandler {
	metrics.Register()
	return &SignalsHandler{signals: signals, events: events, l: l}
}

// SetCache injects a bytes cache for hot endpoints.
func (h *SignalsHandler) SetCache(c icache.BytesCache) { h.cache = c }

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/signals", h.Signals)
	g.GET("/signals/:symbol", h.SignalDetail)
	g.GET("/events", h.Events)
	e.GET("/healthz", h.Health)
}

// Signals returns the latest run's signals ordered by absolute
// expected return.
func (h *SignalsHandler) Signals(c echo.Context) error {
	start := time.Now()
	const endpoint = "signals"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	cacheKey := "signals:latest"
	if req.Limit == 50 {
		if b, ok := h.cacheGet(endpoint, cacheKey); ok {
			return xhttp.SuccessResponse(c, json.RawMessage(b))
		}
	}

	signals, err := h.signals.LatestSignals(c.Request().Context(), req.Limit)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("signals list error", applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if signals == nil {
		signals = []models.Signal{}
	}

	if req.Limit == 50 {
		h.cacheSet(endpoint, cacheKey, signals, 15*time.Second)
	}
	return xhttp.SuccessResponse(c, signals)
}

// SignalDetailResponse carries the full reasoning chain for a symbol:
// the signal, its contributing events and every outcome distribution.
type SignalDetailResponse struct {
	Signal   *models.Signal              `json:"signal"`
	Outcomes map[string][]models.Outcome `json:"outcomes"`
}

func (h *SignalsHandler) SignalDetail(c echo.Context) error {
	start := time.Now()
	const endpoint = "signal_detail"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.SignalDetailRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	sig, err := h.signals.SignalForSymbol(c.Request().Context(), req.Symbol)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("signal detail error",
			applogger.String("symbol", req.Symbol), applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if sig == nil {
		return xhttp.NotFoundResponse(c, "no signal for symbol")
	}

	res := &SignalDetailResponse{
		Signal:   sig,
		Outcomes: make(map[string][]models.Outcome, len(sig.Events)),
	}
	for _, ev := range sig.Events {
		outcomes, err := h.events.OutcomesForEvent(c.Request().Context(), ev.EventID)
		if err != nil {
			metrics.APIErrors.WithLabelValues(endpoint).Inc()
			h.l.Error("signal detail outcomes error",
				applogger.String("event_id", ev.EventID), applogger.Error(err))
			return xhttp.InternalServerErrorResponse(c)
		}
		res.Outcomes[ev.EventID] = outcomes
	}
	return xhttp.SuccessResponse(c, res)
}

// Events returns recently ingested events, optionally filtered by
// symbol and type.
func (h *SignalsHandler) Events(c echo.Context) error {
	start := time.Now()
	const endpoint = "events"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.EventsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Type != "" && !models.ValidEventTypes[models.EventType(req.Type)] {
		return xhttp.BadRequestResponse(c, "unknown event type")
	}
	since := xhttp.ParseTimeDefault(req.Since, time.Time{})
	if req.Since != "" && since.IsZero() {
		return xhttp.BadRequestResponse(c, "since must be RFC3339 or unix seconds")
	}

	events, err := h.events.RecentEvents(c.Request().Context(), req.Symbol, req.Type, since, req.Limit)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("events list error", applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if events == nil {
		events = []models.Event{}
	}
	return xhttp.SuccessResponse(c, events)
}

func (h *SignalsHandler) Health(c echo.Context) error {
	if err := h.events.Health(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *SignalsHandler) cacheGet(endpoint, key string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	b, ok, err := h.cache.GetBytes(key)
	if err != nil {
		h.l.Warn(endpoint+" cache_get_error", applogger.Error(err))
		return nil, false
	}
	return b, ok
}

func (h *SignalsHandler) cacheSet(endpoint, key string, v interface{}, ttl time.Duration) {
	if h.cache == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := h.cache.SetBytes(key, b, ttl); err != nil {
		h.l.Warn(endpoint+" cache_set_error", applogger.Error(err))
	}
}
