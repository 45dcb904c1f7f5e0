package httpserver

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/twiml"
	"go.uber.org/zap"

	"github.com/chadiek/call-relay/internal/instructions"
	"github.com/chadiek/call-relay/internal/peer"
	"github.com/chadiek/call-relay/internal/relay"
	"github.com/chadiek/call-relay/internal/usecase"
	"github.com/chadiek/call-relay/internal/verification"
)

// incomingCall answers Twilio with a short pause and a media stream back to
// this server. Verification details in the query ride along as a token.
func (s *Server) incomingCall(c echo.Context) error {
	v := instructions.Verification{
		SSNLast4:     c.QueryParam("ssnLast4"),
		AccountLast4: c.QueryParam("accountLast4"),
		Zipcode:      c.QueryParam("zipcode"),
	}
	path := "/media-stream"
	if v.Complete() {
		path += "/" + s.pending.Put(v)
	}
	streamURL := s.calls.BuildStreamURL(c, path)
	s.logger.Info("incoming call", zap.String("stream_url", streamURL), zap.Bool("verification", v.Complete()))

	pause := &twiml.VoicePause{Length: "1"}
	connect := &twiml.VoiceConnect{InnerElements: []twiml.Element{&twiml.VoiceStream{Url: streamURL}}}
	response, err := twiml.Voice([]twiml.Element{pause, connect})
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	return c.Blob(http.StatusOK, "text/xml", []byte(response))
}

type callRequest struct {
	BankNumber string `json:"bankNumber" form:"bankNumber" query:"bankNumber"`
}

// callMe places an outbound call that lands on incomingCall once answered.
func (s *Server) callMe(c echo.Context) error {
	if !s.calls.Configured() {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Twilio is not configured."})
	}
	var req callRequest
	if err := c.Bind(&req); err != nil || req.BankNumber == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bankNumber is required."})
	}
	sid, err := s.calls.PlaceCall(req.BankNumber, s.calls.BuildAbsoluteURL(c, "/incoming-call"))
	if err != nil {
		s.logger.Error("error initiating call", zap.Error(err))
		if errors.Is(err, usecase.ErrNotConfigured) {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Twilio is not configured."})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to initiate call."})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Call initiated", "sid": sid})
}

// resolveInstructions picks the verification source for a stream: a parked
// token first, then the CSV on disk.
func (s *Server) resolveInstructions(token string) (string, error) {
	if token != "" {
		if v, ok := s.pending.Take(token); ok {
			return instructions.Compose(s.cfg.SystemMessage, instructions.Inbound, v), nil
		}
		s.logger.Warn("unknown or expired verification token, using file", zap.String("token", token))
	}
	v, err := verification.LoadCSV(s.cfg.VerificationCSV)
	if err != nil {
		return "", err
	}
	if !v.Complete() {
		s.logger.Warn("verification record incomplete, using generic instructions")
	}
	return instructions.Compose(s.cfg.SystemMessage, instructions.File, v), nil
}

// mediaStream bridges one Twilio media stream to one Realtime session. It
// blocks until the session ends.
func (s *Server) mediaStream(c echo.Context) error {
	doc, err := s.resolveInstructions(c.Param("token"))
	if err != nil {
		s.logger.Error("verification data unavailable", zap.Error(err))
		if errors.Is(err, verification.ErrNoRecords) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "No verification data found."})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to read verification data."})
	}

	id := uuid.NewString()
	logger := s.logger.With(zap.String("component", "relay"))
	tel, err := peer.Accept(c.Response(), c.Request(), logger.With(zap.String("call_id", id)))
	if err != nil {
		// the upgrader has already replied
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return nil
	}

	coord := relay.New(id, tel, relay.Config{
		Voice:        s.cfg.Voice,
		Temperature:  s.cfg.Temperature,
		Instructions: doc,
		InitDelay:    s.cfg.SessionInitDelay,
		ShowTiming:   s.cfg.LogTimingMath,
	}, s.policy, s.metrics, logger)
	tel.Start(coord.OnTelephonyMessage, coord.OnTelephonyClose)

	go func() {
		ai, err := s.dialer.Dial(s.sessions)
		if err != nil {
			coord.OnAIDialError(err)
			return
		}
		if !coord.OnAIOpen(ai) {
			_ = ai.Close()
			return
		}
		ai.Start(coord.OnAIMessage, coord.OnAIClose)
	}()

	coord.Run(s.sessions)
	return nil
}
