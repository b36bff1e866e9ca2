package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ecowatch/air-quality-service/internal/aggregator"
	"github.com/ecowatch/air-quality-service/internal/cities"
	"github.com/ecowatch/air-quality-service/internal/lifecycle"
	"github.com/ecowatch/air-quality-service/internal/overload"
	"github.com/ecowatch/air-quality-service/internal/weather"
)

// Handler holds dependencies for the HTTP handlers. weatherService is nil
// when no OpenWeather key is configured; the weather routes then answer 500
// without touching the registry.
type Handler struct {
	agg            *aggregator.Aggregator
	weatherService *weather.Service
	logger         *zap.Logger
	// cachePing, when set, is called by the health handler to check cache
	// reachability. Set when the backend is memcached.
	cachePing func() error
	// overloadWindow is the sliding window the health handler inspects for
	// rate-limit denials. Zero disables the check.
	overloadWindow time.Duration
}

// NewHandler returns a new Handler.
func NewHandler(agg *aggregator.Aggregator, weatherService *weather.Service, logger *zap.Logger, cachePing func() error, overloadWindow time.Duration) *Handler {
	return &Handler{
		agg:            agg,
		weatherService: weatherService,
		logger:         logger,
		cachePing:      cachePing,
		overloadWindow: overloadWindow,
	}
}

// GetAirQuality handles GET /api/air-quality/{cityId}.
func (h *Handler) GetAirQuality(w http.ResponseWriter, r *http.Request) {
	cityID := mux.Vars(r)["cityId"]

	rec, err := h.agg.Get(r.Context(), cityID)
	if err != nil {
		switch {
		case errors.Is(err, aggregator.ErrUnknownCity):
			writeError(w, http.StatusNotFound, "City not found")
		case errors.Is(err, aggregator.ErrNoProviderConfigured),
			errors.Is(err, aggregator.ErrNoProviderAvailable):
			writeError(w, http.StatusInternalServerError, "No AQI API configured or available")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to fetch air quality data")
		}
		h.debugLog(r, "air quality lookup failed", cityID, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListAirQuality handles GET /api/air-quality. Cities whose providers all
// failed are omitted from the array rather than failing the response.
func (h *Handler) ListAirQuality(w http.ResponseWriter, r *http.Request) {
	records, err := h.agg.GetAll(r.Context())
	if err != nil {
		if errors.Is(err, aggregator.ErrNoProviderConfigured) {
			writeError(w, http.StatusInternalServerError, "No AQI API key configured")
		} else {
			writeError(w, http.StatusInternalServerError, "Failed to fetch air quality data")
		}
		h.debugLog(r, "bulk air quality failed", "", err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// GetWeather handles GET /api/weather/{cityId}.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	if h.weatherService == nil {
		writeError(w, http.StatusInternalServerError, "OpenWeather API key not configured")
		return
	}
	city, ok := cities.Lookup(mux.Vars(r)["cityId"])
	if !ok {
		writeError(w, http.StatusNotFound, "City not found")
		return
	}

	data, err := h.weatherService.Current(r.Context(), city)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch weather data")
		h.debugLog(r, "weather lookup failed", city.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// GetUV handles GET /api/weather/{cityId}/uv.
func (h *Handler) GetUV(w http.ResponseWriter, r *http.Request) {
	if h.weatherService == nil {
		writeError(w, http.StatusInternalServerError, "OpenWeather API key not configured")
		return
	}
	city, ok := cities.Lookup(mux.Vars(r)["cityId"])
	if !ok {
		writeError(w, http.StatusNotFound, "City not found")
		return
	}

	data, err := h.weatherService.UV(r.Context(), city)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch UV data")
		h.debugLog(r, "uv lookup failed", city.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// ListWeather handles GET /api/weather.
func (h *Handler) ListWeather(w http.ResponseWriter, r *http.Request) {
	if h.weatherService == nil {
		writeError(w, http.StatusInternalServerError, "OpenWeather API key not configured")
		return
	}
	writeJSON(w, http.StatusOK, h.weatherService.All(r.Context()))
}

// GetHealth handles GET /api/health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	statusCode := http.StatusOK

	checks := map[string]string{}
	if h.agg.Configured() {
		checks["airQualityProviders"] = "configured"
	} else {
		checks["airQualityProviders"] = "unconfigured"
		status = "degraded"
	}
	if h.weatherService != nil {
		checks["weatherProvider"] = "configured"
	} else {
		checks["weatherProvider"] = "unconfigured"
	}
	if h.cachePing != nil {
		if err := h.cachePing(); err == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
			status = "degraded"
		}
	}
	// Shedding load is the limiter working, not an outage; the check is
	// informational and leaves the overall status alone.
	if h.overloadWindow > 0 {
		if overload.DenialCount(h.overloadWindow) > 0 {
			checks["rateLimit"] = "shedding"
		} else {
			checks["rateLimit"] = "ok"
		}
	}

	if lifecycle.IsShuttingDown() {
		status = "shutting-down"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"service":   "air-quality-service",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeJSON writes v as a JSON response with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the flat {"error": message} body the dashboard consumes.
// message must be generic; upstream error text stays in logs so provider
// keys and internals never leak into responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// debugLog logs the underlying error at debug level using the
// request-scoped logger when present.
func (h *Handler) debugLog(r *http.Request, msg, cityID string, err error) {
	logger, _ := r.Context().Value("logger").(*zap.Logger)
	if logger == nil {
		logger = h.logger
	}
	if logger == nil {
		return
	}
	fields := []zap.Field{zap.Error(err)}
	if cityID != "" {
		fields = append(fields, zap.String("city", cityID))
	}
	logger.Debug(msg, fields...)
}
