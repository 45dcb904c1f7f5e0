package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/chadiek/call-relay/internal/instructions"
	"github.com/chadiek/call-relay/internal/peer"
)

// ErrMissingAPIKey is returned by Load when OPENAI_API_KEY is unset.
var ErrMissingAPIKey = errors.New("config: OPENAI_API_KEY is required")

// Config holds application configuration.
type Config struct {
	HTTPAddress string
	BaseURL     string

	OpenAIKey         string
	RealtimeURL       string
	Voice             string
	Temperature       float64
	SessionInitDelay  time.Duration
	SystemMessage     string
	DisconnectPhrases []string

	TwilioAccountSID       string
	TwilioAuthToken        string
	TwilioPhoneNumber      string
	TwilioValidateWebhooks bool

	VerificationCSV string

	LogLevel      string
	LogFormat     string
	LogTimingMath bool
}

// TwilioConfigured reports whether outbound calls can be placed.
func (c Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioPhoneNumber != ""
}

// Load reads .env (if any) and the environment, applying defaults. The logger
// may be nil; it only receives warnings about unusable values.
func Load(logger *zap.Logger) (Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", zap.Error(err))
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":5050"
		}
	}

	cfg := Config{
		HTTPAddress:            addr,
		BaseURL:                strings.TrimRight(os.Getenv("BASE_URL"), "/"),
		OpenAIKey:              os.Getenv("OPENAI_API_KEY"),
		RealtimeURL:            envOr("OPENAI_REALTIME_URL", peer.DefaultRealtimeURL),
		Voice:                  envOr("OPENAI_VOICE", "alloy"),
		Temperature:            envFloat(logger, "OPENAI_TEMPERATURE", 0.8),
		SessionInitDelay:       envDuration(logger, "SESSION_INIT_DELAY", 100*time.Millisecond),
		SystemMessage:          envOr("SYSTEM_MESSAGE", instructions.DefaultSystemMessage),
		DisconnectPhrases:      splitList(os.Getenv("DISCONNECT_PHRASES")),
		TwilioAccountSID:       os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:        os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioPhoneNumber:      os.Getenv("TWILIO_PHONE_NUMBER"),
		TwilioValidateWebhooks: envBool(logger, "TWILIO_VALIDATE_WEBHOOKS", false),
		VerificationCSV:        envOr("VERIFICATION_CSV", "data.csv"),
		LogLevel:               envOr("LOG_LEVEL", "info"),
		LogFormat:              envOr("LOG_FORMAT", "json"),
		LogTimingMath:          envBool(logger, "LOG_TIMING_MATH", false),
	}

	if cfg.OpenAIKey == "" {
		return cfg, ErrMissingAPIKey
	}
	if !cfg.TwilioConfigured() {
		logger.Warn("Twilio credentials not set - /call-me will not work")
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envFloat(logger *zap.Logger, key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warn("invalid float, using default", zap.String("key", key), zap.String("value", v))
		return def
	}
	return f
}

func envBool(logger *zap.Logger, key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid bool, using default", zap.String("key", key), zap.String("value", v))
		return def
	}
	return b
}

func envDuration(logger *zap.Logger, key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		logger.Warn("invalid duration, using default", zap.String("key", key), zap.String("value", v))
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
