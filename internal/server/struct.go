package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/botforge/botcore/internal/composer"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds a single /api/chat request end to end, including the
	// generation call. Defaults to 2 minutes.
	ChatTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's Prometheus metrics. If nil,
	// prometheus.DefaultRegisterer is used.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. If nil, prometheus.DefaultGatherer
	// is used.
	MetricsGatherer prometheus.Gatherer
}

// responder is the interface handleChat calls to compose a reply.
// *composer.Composer satisfies it; tests inject a fake.
type responder interface {
	Respond(ctx context.Context, req *composer.Request) (*composer.Response, error)
}

// Server is the HTTP server that exposes the chat pipeline.
type Server struct {
	// responder composes replies; set to the composer in production,
	// overridden by a fake in tests.
	responder responder
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// TenantID identifies the bot answering this conversation.
	TenantID string `json:"tenantId"`
	// ConversationID identifies the thread within the tenant.
	ConversationID string `json:"conversationId"`
	// Message is the user's text. May be empty when an image is attached.
	Message string `json:"message"`
	// ImageBase64 is an optional base64-encoded image attachment.
	ImageBase64 string `json:"imageBase64,omitempty"`
	// ImageMIME is the attachment's content type (default image/jpeg).
	ImageMIME string `json:"imageMime,omitempty"`
}

// chatResponse is the JSON response for POST /api/chat.
type chatResponse struct {
	// Answer is the assistant's reply text.
	Answer string `json:"answer"`
	// Direct is true when the answer came from the direct matcher without a
	// generation call.
	Direct bool `json:"direct"`
	// Products are the catalog matches that informed the answer, if any.
	Products []composer.Product `json:"products,omitempty"`
}
