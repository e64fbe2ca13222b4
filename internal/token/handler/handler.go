package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trivigil/internal/platform/metrics"
	"trivigil/internal/platform/middleware"
	"trivigil/internal/token/auth"
	dErrors "trivigil/pkg/domainerrors"
	"trivigil/pkg/secrets"
)

// Issuer mints a token for a product code.
type Issuer interface {
	Issue(ctx context.Context, product string) (string, error)
}

// HealthChecker reports backing-store reachability for /healthz.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler is the HTTP surface consumed by the storefront.
type Handler struct {
	logger       *slog.Logger
	issuer       Issuer
	metrics      *metrics.Metrics
	jwt          *auth.JWTService
	apiKeyHash   string
	health       []HealthChecker
	promGatherer prometheus.Gatherer
}

// New creates the storefront HTTP handler. apiKeyHash is an optional
// bcrypt hash of a static API key accepted as an alternative to JWT.
func New(
	issuer Issuer,
	logger *slog.Logger,
	m *metrics.Metrics,
	jwtService *auth.JWTService,
	apiKeyHash string,
	gatherer prometheus.Gatherer,
	health ...HealthChecker,
) *Handler {
	return &Handler{
		logger:       logger,
		issuer:       issuer,
		metrics:      m,
		jwt:          jwtService,
		apiKeyHash:   apiKeyHash,
		health:       health,
		promGatherer: gatherer,
	}
}

// Register registers the routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(15 * time.Second))
	router.Use(middleware.ContentTypeJSON)

	router.Group(func(r chi.Router) {
		r.Use(h.requireStorefrontAuth)
		r.Post("/generate-token", h.handleGenerateToken)
	})
	router.Get("/healthz", h.handleHealthz)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.promGatherer, promhttp.HandlerOpts{}))

	r.Mount("/", router)
}

type generateTokenRequest struct {
	Product string `json:"product"`
}

type generateTokenResponse struct {
	Token string `json:"token"`
}

func (h *Handler) handleGenerateToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req generateTokenRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.logger.WarnContext(ctx, "invalid generate-token request",
				"request_id", requestID,
				"error", err.Error(),
			)
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}

	token, err := h.issuer.Issue(ctx, req.Product)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue token",
			"request_id", requestID,
			"product", req.Product,
			"error", err.Error(),
		)
		writeError(w, dErrors.New(dErrors.CodeInternal, "failed to issue token"))
		return
	}

	h.metrics.TokensIssued.Inc()
	writeJSON(w, http.StatusOK, generateTokenResponse{Token: token})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	for _, checker := range h.health {
		if checker == nil {
			continue
		}
		if err := checker.Health(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed", "error", err.Error())
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireStorefrontAuth accepts either a bearer JWT signed with the
// issuer key or a static API key matching the configured bcrypt hash.
func (h *Handler) requireStorefrontAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKeyHash != "" {
			if key := r.Header.Get("X-Api-Key"); key != "" {
				if err := secrets.Verify(key, h.apiKeyHash); err == nil {
					next.ServeHTTP(w, r)
					return
				}
				writeError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid api key"))
				return
			}
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, dErrors.New(dErrors.CodeUnauthorized, "missing credentials"))
			return
		}
		if _, err := h.jwt.ValidateToken(token); err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError centralizes domain error translation to HTTP responses so
// every handler emits the same JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.ToHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": string(code),
	})
}
