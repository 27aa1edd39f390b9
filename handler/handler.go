package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"companion-relay/internal/domain"
	"companion-relay/internal/integrations/line"
	"companion-relay/internal/usecase"
	"companion-relay/pkg/logger"
)

const (
	HealthText          = "LINE AI Girlfriend Bot is running!"
	correlationIDHeader = "X-Correlation-Id"
	maxBodyBytes        = 1 << 20
)

type Relay interface {
	HandleBatch(ctx context.Context, events []domain.InboundEvent) usecase.BatchResult
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler accepts LINE webhooks from either API Gateway (Lambda) or a plain
// HTTP server and acknowledges every decodable batch with 200.
type Handler struct {
	relay         Relay
	channelSecret string
	log           *slog.Logger
	gatherer      prometheus.Gatherer
}

type Option func(*Handler)

// WithChannelSecret enables X-Line-Signature verification.
func WithChannelSecret(secret string) Option {
	return func(h *Handler) {
		h.channelSecret = strings.TrimSpace(secret)
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithMetrics exposes g on GET /metrics in the HTTP router.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.gatherer = g
	}
}

func NewHandler(relay Relay, opts ...Option) (*Handler, error) {
	if relay == nil {
		return nil, errors.New("handler: relay must not be nil")
	}
	h := &Handler{relay: relay, log: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// webhook verifies and decodes one webhook body, runs the batch and returns
// the status to acknowledge with.
func (h *Handler) webhook(ctx context.Context, body []byte, signature string) int {
	if h.channelSecret != "" && !line.ValidateSignature(h.channelSecret, body, signature) {
		h.log.WarnContext(ctx, "rejecting webhook with invalid signature")
		return http.StatusUnauthorized
	}

	var payload domain.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.log.WarnContext(ctx, "rejecting undecodable webhook body", "err", err)
		return http.StatusBadRequest
	}

	res := h.relay.HandleBatch(ctx, payload.Events)
	h.log.InfoContext(ctx, "webhook handled",
		"events", len(payload.Events),
		"processed", res.Processed,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return http.StatusOK
}

// Handle is the Lambda entry point for API Gateway proxy events.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationIDHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx = logger.WithCorrelationID(ctx, correlationID)
	headers := map[string]string{correlationIDHeader: correlationID}

	path := strings.TrimRight(req.Path, "/")
	switch {
	case req.HTTPMethod == http.MethodGet && path == "":
		headers["Content-Type"] = "text/plain; charset=utf-8"
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Headers: headers, Body: HealthText}, nil

	case req.HTTPMethod == http.MethodPost && path == "/webhook":
		body := []byte(req.Body)
		if req.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(req.Body)
			if err != nil {
				h.log.WarnContext(ctx, "rejecting webhook with invalid base64 body", "err", err)
				return jsonError(http.StatusBadRequest, "invalid_body", headers), nil
			}
			body = decoded
		}
		status := h.webhook(ctx, body, headerValue(req.Headers, line.SignatureHeader))
		return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers}, nil

	default:
		return jsonError(http.StatusNotFound, "not_found", headers), nil
	}
}

// Router returns the chi router used in standalone server mode.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(h.correlationMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/", h.handleHealth)
	r.Post("/webhook", h.handleWebhook)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (h *Handler) correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(correlationIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(correlationIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithCorrelationID(r.Context(), id)))
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, HealthText)
}

// handleWebhook keeps processing the batch after the caller disconnects;
// outbound calls are bounded by the HTTP client timeout only.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.log.WarnContext(ctx, "rejecting oversized webhook body", "limit_bytes", tooLarge.Limit)
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		h.log.WarnContext(ctx, "failed to read webhook body", "err", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(h.webhook(ctx, body, r.Header.Get(line.SignatureHeader)))
}

func jsonError(status int, code string, headers map[string]string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(errorResponse{Error: code})
	headers["Content-Type"] = "application/json"
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, Body: string(body)}
}

// headerValue looks up a header case-insensitively; API Gateway forwards
// header names as the client sent them.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
