package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/chadiek/call-relay/internal/config"
	"github.com/chadiek/call-relay/internal/metrics"
	mw "github.com/chadiek/call-relay/internal/middleware"
	"github.com/chadiek/call-relay/internal/peer"
	"github.com/chadiek/call-relay/internal/relay"
	"github.com/chadiek/call-relay/internal/usecase"
	"github.com/chadiek/call-relay/internal/verification"
)

// AIDialer opens the AI side of a call.
type AIDialer interface {
	Dial(ctx context.Context) (*peer.Conn, error)
}

// Server bundles the router and what the handlers need.
type Server struct {
	Router *echo.Echo

	cfg     config.Config
	calls   *usecase.CallService
	pending *verification.Pending
	policy  *relay.DisconnectPolicy
	dialer  AIDialer
	metrics *metrics.Metrics
	logger  *zap.Logger

	// sessions is cancelled on shutdown; hijacked websocket connections are
	// not tracked by http.Server.
	sessions context.Context
	cancel   context.CancelFunc
}

// Option customises a Server.
type Option func(*Server)

// WithDialer replaces the Realtime dialer.
func WithDialer(d AIDialer) Option { return func(s *Server) { s.dialer = d } }

// WithCallService replaces the Twilio-backed call service.
func WithCallService(c *usecase.CallService) Option { return func(s *Server) { s.calls = c } }

// New constructs the HTTP server with routes.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := metrics.New("relay")
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Router:   newEcho(),
		cfg:      cfg,
		pending:  verification.NewPending(verification.DefaultPendingTTL),
		policy:   relay.NewDisconnectPolicy(cfg.DisconnectPhrases),
		metrics:  m,
		logger:   logger,
		sessions: ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.calls == nil {
		s.calls = usecase.NewCallService(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber, cfg.BaseURL, m, logger)
	}
	if s.dialer == nil {
		s.dialer = peer.RealtimeDialer{URL: cfg.RealtimeURL, APIKey: cfg.OpenAIKey, Logger: logger}
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.Router
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "Twilio Media Stream Server is running!"})
	})
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	var webhook []echo.MiddlewareFunc
	if s.cfg.TwilioValidateWebhooks {
		publicURL := func(c echo.Context) string {
			return s.calls.BuildAbsoluteURL(c, c.Request().URL.RequestURI())
		}
		webhook = append(webhook, mw.TwilioSignature(s.cfg.TwilioAuthToken, publicURL, s.logger))
	}
	e.Match([]string{http.MethodGet, http.MethodPost}, "/incoming-call", s.incomingCall, webhook...)
	e.POST("/call-me", s.callMe)
	e.GET("/media-stream", s.mediaStream)
	e.GET("/media-stream/:token", s.mediaStream)
}

// CloseSessions ends every live call. The listener itself belongs to the
// caller's http.Server.
func (s *Server) CloseSessions() { s.cancel() }

// Metrics exposes the server's collectors.
func (s *Server) Metrics() *metrics.Metrics { return s.metrics }
