package usecase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/chadiek/call-relay/internal/metrics"
)

// ErrNotConfigured is returned by PlaceCall when Twilio credentials are absent.
var ErrNotConfigured = errors.New("twilio is not configured")

// CallCreator is the slice of the Twilio REST API used to place calls.
type CallCreator interface {
	CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error)
}

// CallService places outbound calls and builds the public URLs Twilio calls
// back on.
type CallService struct {
	creator CallCreator
	from    string
	baseURL string
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewCallService builds a service backed by the Twilio REST client. Without
// credentials the service still builds URLs but cannot place calls.
func NewCallService(accountSID, authToken, from, baseURL string, m *metrics.Metrics, logger *zap.Logger) *CallService {
	var creator CallCreator
	if accountSID != "" && authToken != "" && from != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		})
		creator = client.Api
	}
	return NewCallServiceWithCreator(creator, from, baseURL, m, logger)
}

func NewCallServiceWithCreator(creator CallCreator, from, baseURL string, m *metrics.Metrics, logger *zap.Logger) *CallService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallService{
		creator: creator,
		from:    from,
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: m,
		logger:  logger.With(zap.String("component", "calls")),
	}
}

func (s *CallService) Configured() bool { return s.creator != nil }

// PlaceCall dials to and points the call at twimlURL. It returns the call SID.
func (s *CallService) PlaceCall(to, twimlURL string) (string, error) {
	if s.creator == nil {
		return "", ErrNotConfigured
	}
	params := &openapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetUrl(twimlURL)

	call, err := s.creator.CreateCall(params)
	if err != nil {
		s.metrics.CallPlaced(false)
		return "", fmt.Errorf("create call to %s: %w", to, err)
	}
	s.metrics.CallPlaced(true)
	sid := ""
	if call != nil && call.Sid != nil {
		sid = *call.Sid
	}
	s.logger.Info("call initiated", zap.String("call_sid", sid))
	return sid, nil
}

// BuildAbsoluteURL builds a public absolute URL for callbacks.
// Priority: BASE_URL > X-Forwarded-* headers > request Host heuristic.
func (s *CallService) BuildAbsoluteURL(c echo.Context, path string) string {
	baseURL := s.baseURL
	if baseURL == "" {
		proto := c.Request().Header.Get("X-Forwarded-Proto")
		host := c.Request().Header.Get("X-Forwarded-Host")
		if proto != "" && host != "" {
			baseURL = fmt.Sprintf("%s://%s", proto, host)
		}
	}
	if baseURL == "" {
		host := c.Request().Host
		proto := "https"
		if strings.HasPrefix(host, "localhost:") || strings.HasPrefix(host, "127.0.0.1:") {
			proto = "http"
		}
		baseURL = fmt.Sprintf("%s://%s", proto, host)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return baseURL + path
}

// BuildStreamURL is BuildAbsoluteURL with the websocket scheme.
func (s *CallService) BuildStreamURL(c echo.Context, path string) string {
	u := s.BuildAbsoluteURL(c, path)
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
