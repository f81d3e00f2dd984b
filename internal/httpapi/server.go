package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"duckweb/internal/backtest"
	"duckweb/internal/domain"
	"duckweb/internal/observability"
	"duckweb/internal/store"
	"duckweb/internal/strategy"
	"duckweb/internal/util"
)

// Server serves the bar and backtest HTTP API.
type Server struct {
	store    store.BarStore
	bt       *strategy.Backtester
	defaults Defaults
	metrics  *observability.Metrics
	log      *slog.Logger
}

// NewServer creates a new HTTP API server. metrics may be nil.
func NewServer(
	barStore store.BarStore,
	bt *strategy.Backtester,
	defaults Defaults,
	metrics *observability.Metrics,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	if len(defaults.RiskRewards) == 0 {
		defaults.RiskRewards = backtest.DefaultRiskRewards()
	}
	return &Server{
		store:    barStore,
		bt:       bt,
		defaults: defaults,
		metrics:  metrics,
		log:      log,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/series", s.handleSeries)
	mux.HandleFunc("GET /api/series/{index}/{timeframe}/dates", s.handleDates)
	mux.HandleFunc("GET /api/series/{index}/{timeframe}/bars", s.handleBars)
	mux.HandleFunc("GET /api/backtest", s.handleBacktest)
	mux.HandleFunc("GET /ws/backtest", s.handleBacktestStream)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// Handler returns an http.Handler with CORS and request-count middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(s.countMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack passes through so websocket upgrades work behind the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) countMiddleware(mux *http.ServeMux) http.Handler {
	if s.metrics == nil {
		return mux
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, pattern := mux.Handler(r)
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		mux.ServeHTTP(rec, r)
		if pattern == "" {
			pattern = "unmatched"
		}
		s.metrics.RecordRequest(pattern, strconv.Itoa(rec.code))
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ErrorStatus maps domain errors to HTTP status codes.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, store.ErrInvalidSeries),
		errors.Is(err, strategy.ErrInvalidConfig),
		errors.Is(err, strategy.ErrUnknownIndicator),
		errors.Is(err, backtest.ErrInvalidRiskReward):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, strategy.ErrNoBars):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := ErrorStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.ListSeries(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]SeriesJSON, len(keys))
	for i, k := range keys {
		out[i] = SeriesJSON{Name: k.String(), Index: k.Index, Timeframe: k.Timeframe}
	}
	writeJSON(w, out)
}

func (s *Server) pathKey(r *http.Request) (store.SeriesKey, error) {
	return store.NewSeriesKey(r.PathValue("index"), r.PathValue("timeframe"))
}

func (s *Server) handleDates(w http.ResponseWriter, r *http.Request) {
	key, err := s.pathKey(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	first, last, err := s.store.DateBounds(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, DatesJSON{Series: key.String(), First: first, Last: last})
}

func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	key, err := s.pathKey(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	start, end, err := util.ParseDateRange(q.Get("start"), q.Get("end"))
	if err != nil {
		s.fail(w, r, errors.Join(ErrBadRequest, err))
		return
	}
	if start.IsZero() || end.IsZero() {
		first, last, err := s.store.DateBounds(r.Context(), key)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if start.IsZero() {
			start = first
		}
		if end.IsZero() {
			end = last
		}
	}

	bars, err := s.store.ReadBars(r.Context(), key, start, end)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, barsJSON(bars))
}

func barsJSON(bars []domain.Bar) []BarJSON {
	out := make([]BarJSON, len(bars))
	for i, b := range bars {
		out[i] = BarJSON{Time: b.Timestamp, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	return out
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	p, err := ParseQuery(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp, err := s.RunBacktest(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, resp)
}

// RunBacktest executes p against the backtester and formats the response.
func (s *Server) RunBacktest(ctx context.Context, p BacktestParams) (BacktestJSON, error) {
	req, err := p.Request(s.defaults)
	if err != nil {
		return BacktestJSON{}, err
	}
	report, err := s.bt.Run(ctx, req)
	if err != nil {
		return BacktestJSON{}, err
	}
	return BuildResponse(report, p), nil
}
