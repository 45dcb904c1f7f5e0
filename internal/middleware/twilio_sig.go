package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/client"
	"go.uber.org/zap"
)

// SignatureHeader carries Twilio's webhook signature.
const SignatureHeader = "X-Twilio-Signature"

// TwilioSignature rejects webhook requests whose signature does not match.
// publicURL returns the URL Twilio requested, including the query string,
// as seen from outside any proxy.
func TwilioSignature(authToken string, publicURL func(c echo.Context) string, logger *zap.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	validator := client.NewRequestValidator(authToken)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if authToken == "" {
				return c.String(http.StatusInternalServerError, "TWILIO_AUTH_TOKEN not configured")
			}
			req := c.Request()
			params := map[string]string{}
			if req.Method == http.MethodPost {
				if err := req.ParseForm(); err != nil {
					return c.String(http.StatusBadRequest, "Failed to parse form data")
				}
				for key, values := range req.PostForm {
					if len(values) > 0 {
						params[key] = values[0]
					}
				}
			}

			signature := req.Header.Get(SignatureHeader)
			url := publicURL(c)
			if signature == "" || !validator.Validate(url, params, signature) {
				logger.Warn("rejected webhook with invalid signature", zap.String("url", url))
				return c.String(http.StatusUnauthorized, "Invalid Twilio signature")
			}
			return next(c)
		}
	}
}
