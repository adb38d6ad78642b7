package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/ledgerlens/internal/domain"
	"github.com/opensource-finance/ledgerlens/internal/ledger"
	"github.com/opensource-finance/ledgerlens/internal/query"
	"github.com/opensource-finance/ledgerlens/internal/stats"
	"github.com/opensource-finance/ledgerlens/internal/worker"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Dataset is the ledger snapshot holder the handlers read through.
type Dataset interface {
	ledger.Snapshotter
	Loaded() bool
	Current() *ledger.Snapshot
	Invalidate()
}

// Scorer scores a single transaction.
type Scorer interface {
	Score(in domain.ScoreInput) domain.ScoreResult
}

// VerdictObserver is told about every prediction served.
type VerdictObserver interface {
	ObserveVerdict(isFraud bool)
}

// Dependencies wires a Handler. Only Data and Scorer are required.
type Dependencies struct {
	Data     Dataset
	Scorer   Scorer
	Cache    domain.Cache
	Bus      domain.EventBus
	Store    domain.LedgerStore
	Verdicts VerdictObserver
	Version  string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	data     Dataset
	query    *query.Engine
	stats    *stats.CachedEngine
	scorer   Scorer
	cache    domain.Cache
	bus      domain.EventBus
	store    domain.LedgerStore
	verdicts VerdictObserver
	version  string
}

// NewHandler creates a new API handler. Aggregations go through cache when
// one is configured.
func NewHandler(deps Dependencies, cacheTTL time.Duration, cacheObserver stats.CacheObserver) *Handler {
	c := deps.Cache
	if c == nil {
		c = noCache{}
	}
	return &Handler{
		data:     deps.Data,
		query:    query.New(deps.Data),
		stats:    stats.NewCached(deps.Data, c, cacheTTL, cacheObserver),
		scorer:   deps.Scorer,
		cache:    deps.Cache,
		bus:      deps.Bus,
		store:    deps.Store,
		verdicts: deps.Verdicts,
		version:  deps.Version,
	}
}

// ============================================================================
// SYSTEM
// ============================================================================

// Health reports liveness and whether a snapshot is published.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "ok"

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(ctx); err != nil {
			status = "degraded"
		}
	}
	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"dataset_loaded": h.data.Loaded(),
	})
}

// MetadataResponse describes the running service and its snapshot.
type MetadataResponse struct {
	Version    string `json:"version"`
	LastUpdate string `json:"last_update,omitempty"`
	Schema     string `json:"schema,omitempty"`
	FraudRule  string `json:"fraud_rule,omitempty"`
	Rows       int    `json:"rows"`
}

// Metadata handles GET /api/metadata. It never triggers a load.
func (h *Handler) Metadata(w http.ResponseWriter, r *http.Request) {
	resp := MetadataResponse{Version: h.version}
	if snap := h.data.Current(); snap != nil {
		resp.LastUpdate = snap.LoadedAt.UTC().Format(time.RFC3339)
		resp.Schema = string(snap.Schema)
		resp.FraudRule = string(snap.FraudRule)
		resp.Rows = snap.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Invalidate handles POST /api/admin/invalidate. With a bus configured the
// event reaches every replica; otherwise the local snapshot is dropped.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	event := domain.InvalidateEvent{Reason: "api", RequestedBy: GetRequestID(ctx)}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON request body"))
			return
		}
		if event.RequestedBy == "" {
			event.RequestedBy = GetRequestID(ctx)
		}
	}

	if h.bus == nil {
		h.data.Invalidate()
		if h.cache != nil {
			_ = h.cache.Purge(ctx, stats.CacheNamespace)
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "invalidated", "broadcast": false})
		return
	}

	if err := worker.PublishInvalidate(ctx, h.bus, event); err != nil {
		slog.Error("failed to publish invalidation", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to publish invalidation"))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "invalidation published", "broadcast": true})
}

// ============================================================================
// TRANSACTIONS
// ============================================================================

// ListTransactions handles GET /api/transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	filter, err := filterParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.query.Paginate(r.Context(), page, limit, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetTransaction handles GET /api/transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.query.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// DeleteTransaction handles DELETE /api/transactions/{id}. The ledger is
// read-only, so nothing is removed.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	msg := h.query.Delete(r.Context(), chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// SearchRequest is the body of POST /api/transactions/search.
type SearchRequest struct {
	Type        *string   `json:"type"`
	IsFraud     *int      `json:"is_fraud"`
	IsFraudAlt  *int      `json:"isFraud"`
	AmountRange []float64 `json:"amount_range"`
}

func (s SearchRequest) filter() (domain.Filter, error) {
	f := domain.Filter{Category: s.Type, IsFraud: s.IsFraud}
	if f.IsFraud == nil {
		f.IsFraud = s.IsFraudAlt
	}
	if f.IsFraud != nil && *f.IsFraud != 0 && *f.IsFraud != 1 {
		return f, fmt.Errorf("%w: is_fraud must be 0 or 1", domain.ErrInvalidArgument)
	}
	switch len(s.AmountRange) {
	case 0:
	case 2:
		f.MinAmount, f.MaxAmount = &s.AmountRange[0], &s.AmountRange[1]
	default:
		return f, fmt.Errorf("%w: amount_range must be [min, max]", domain.ErrInvalidArgument)
	}
	return f, nil
}

// Search handles POST /api/transactions/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON request body"))
		return
	}
	filter, err := req.filter()
	if err != nil {
		writeError(w, err)
		return
	}

	rows, err := h.query.Search(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(rows), "transactions": nonNil(rows)})
}

// Types handles GET /api/transactions/types.
func (h *Handler) Types(w http.ResponseWriter, r *http.Request) {
	types, err := h.query.DistinctCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"types": nonNil(types)})
}

// Recent handles GET /api/transactions/recent.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r, "n", 10)
	if err != nil {
		writeError(w, err)
		return
	}
	if n < 1 || n > maxLimit {
		writeError(w, fmt.Errorf("%w: n must be between 1 and %d", domain.ErrInvalidArgument, maxLimit))
		return
	}

	rows, err := h.query.Recent(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": nonNil(rows)})
}

// ByCustomer handles GET /api/transactions/by-customer/{id}.
func (h *Handler) ByCustomer(w http.ResponseWriter, r *http.Request) {
	h.partyRows(w, r, h.query.ByOriginParty)
}

// ToCustomer handles GET /api/transactions/to-customer/{id}.
func (h *Handler) ToCustomer(w http.ResponseWriter, r *http.Request) {
	h.partyRows(w, r, h.query.ByDestinationParty)
}

func (h *Handler) partyRows(w http.ResponseWriter, r *http.Request, lookup func(context.Context, string) ([]domain.Transaction, error)) {
	id := chi.URLParam(r, "id")
	rows, err := lookup(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"customer_id":  id,
		"count":        len(rows),
		"transactions": nonNil(rows),
	})
}

// ============================================================================
// STATS
// ============================================================================

// Overview handles GET /api/stats/overview.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	respond(w, r, h.stats.Overview)
}

// AmountDistribution handles GET /api/stats/amount-distribution.
func (h *Handler) AmountDistribution(w http.ResponseWriter, r *http.Request) {
	respond(w, r, h.stats.AmountDistribution)
}

// ByType handles GET /api/stats/by-type.
func (h *Handler) ByType(w http.ResponseWriter, r *http.Request) {
	respond(w, r, h.stats.ByCategory)
}

// Daily handles GET /api/stats/daily.
func (h *Handler) Daily(w http.ResponseWriter, r *http.Request) {
	respond(w, r, h.stats.ByTimeUnit)
}

// ============================================================================
// FRAUD
// ============================================================================

// FraudSummary handles GET /api/fraud/summary.
func (h *Handler) FraudSummary(w http.ResponseWriter, r *http.Request) {
	respond(w, r, func(ctx context.Context) (domain.FraudSummary, error) {
		return h.stats.FraudSummary(ctx, h.scorer)
	})
}

// FraudByType handles GET /api/fraud/by-type.
func (h *Handler) FraudByType(w http.ResponseWriter, r *http.Request) {
	respond(w, r, h.stats.ByFraud)
}

// PredictRequest is the body of POST /api/fraud/predict.
type PredictRequest struct {
	Type           string   `json:"type"`
	Amount         *float64 `json:"amount"`
	OldBalanceOrg  *float64 `json:"oldbalanceOrg"`
	NewBalanceOrig *float64 `json:"newbalanceOrig"`
}

// Predict handles POST /api/fraud/predict. It works without a loaded ledger.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON request body"))
		return
	}
	if req.Type == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("type is required"))
		return
	}
	if req.Amount == nil || *req.Amount < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("amount must be a non-negative number"))
		return
	}

	result := h.scorer.Score(domain.ScoreInput{
		Category:      req.Type,
		Amount:        *req.Amount,
		BalanceBefore: req.OldBalanceOrg,
		BalanceAfter:  req.NewBalanceOrig,
	})
	if h.verdicts != nil {
		h.verdicts.ObserveVerdict(result.IsFraud)
	}
	writeJSON(w, http.StatusOK, result)
}

// ============================================================================
// CUSTOMERS
// ============================================================================

// ListCustomers handles GET /api/customers.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.query.ListCustomers(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// TopCustomers handles GET /api/customers/top.
func (h *Handler) TopCustomers(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r, "n", 10)
	if err != nil {
		writeError(w, err)
		return
	}
	if n < 1 || n > maxLimit {
		writeError(w, fmt.Errorf("%w: n must be between 1 and %d", domain.ErrInvalidArgument, maxLimit))
		return
	}
	by := domain.RankBy(r.URL.Query().Get("by"))
	if by == "" {
		by = domain.RankByVolume
	}

	respond(w, r, func(ctx context.Context) ([]domain.CustomerProfile, error) {
		return h.stats.TopCustomers(ctx, n, by)
	})
}

// GetCustomer handles GET /api/customers/{id}.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	respond(w, r, func(ctx context.Context) (domain.CustomerProfile, error) {
		return h.stats.CustomerRollup(ctx, id)
	})
}

// ============================================================================
// HELPERS
// ============================================================================

// RequireLedger answers 503 until the ledger can be loaded, so engine errors
// below it are always about the request.
func (h *Handler) RequireLedger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := h.data.Snapshot(r.Context()); err != nil {
			slog.Error("ledger unavailable", "error", err, "path", r.URL.Path)
			writeJSON(w, http.StatusServiceUnavailable, errorBody("ledger unavailable"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respond[T any](w http.ResponseWriter, r *http.Request, fn func(context.Context) (T, error)) {
	v, err := fn(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func pageParams(r *http.Request) (page, limit int, err error) {
	if page, err = intParam(r, "page", 1); err != nil {
		return 0, 0, err
	}
	if limit, err = intParam(r, "limit", defaultLimit); err != nil {
		return 0, 0, err
	}
	if page < 1 {
		return 0, 0, fmt.Errorf("%w: page must be >= 1", domain.ErrInvalidArgument)
	}
	if limit < 1 || limit > maxLimit {
		return 0, 0, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidArgument, maxLimit)
	}
	return page, limit, nil
}

func filterParams(r *http.Request) (domain.Filter, error) {
	q := r.URL.Query()
	var f domain.Filter

	if v := q.Get("type"); v != "" {
		f.Category = &v
	}

	raw := q.Get("is_fraud")
	if raw == "" {
		raw = q.Get("isFraud")
	}
	if raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || (n != 0 && n != 1) {
			return f, fmt.Errorf("%w: is_fraud must be 0 or 1", domain.ErrInvalidArgument)
		}
		f.IsFraud = &n
	}

	var err error
	if f.MinAmount, err = floatParam(q.Get("min_amount"), "min_amount"); err != nil {
		return f, err
	}
	if f.MaxAmount, err = floatParam(q.Get("max_amount"), "max_amount"); err != nil {
		return f, err
	}
	return f, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidArgument, name)
	}
	return n, nil
}

func floatParam(raw, name string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", domain.ErrInvalidArgument, name)
	}
	return &v, nil
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal server error"))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// noCache makes every aggregation a miss.
type noCache struct{}

func (noCache) Get(context.Context, string, string) ([]byte, error) { return nil, nil }
func (noCache) Set(context.Context, string, string, []byte, time.Duration) error { return nil }
func (noCache) Delete(context.Context, string, string) error { return nil }
func (noCache) Purge(context.Context, string) error { return nil }
func (noCache) Ping(context.Context) error { return nil }
func (noCache) Close() error { return nil }
