// Package relay bridges one Twilio media stream to one OpenAI Realtime
// session. All per-call state lives in a CallSession that only the
// Coordinator's event loop touches.
package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chadiek/call-relay/internal/metrics"
	"github.com/chadiek/call-relay/internal/wire"
)

// Peer is one side of the bridge. Send is fire-and-forget and must not block;
// Close must be safe to call more than once.
type Peer interface {
	Send(v any) error
	Close() error
	IsOpen() bool
}

// Config is the per-session AI configuration.
type Config struct {
	Voice        string
	Temperature  float64
	Instructions string
	// InitDelay separates AI-peer open from the session.update so the peer
	// has settled before it is configured.
	InitDelay time.Duration
	// ShowTiming logs playback timing math at debug level.
	ShowTiming bool
}

type eventKind int

const (
	evTelephonyMessage eventKind = iota
	evTelephonyClosed
	evAIOpened
	evAIMessage
	evAIClosed
	evAIFailed
	evSessionInit
)

type event struct {
	kind eventKind
	data []byte
	peer Peer
	err  error
}

// Coordinator owns one call. Peer readers post into it through the On*
// methods; Run processes events one at a time.
type Coordinator struct {
	id        string
	cfg       Config
	state     *CallSession
	telephony Peer
	ai        Peer

	interrupter *Interrupter
	policy      *DisconnectPolicy
	metrics     *metrics.Metrics
	// baseLogger carries call_id; logger adds stream_sid once known.
	baseLogger *zap.Logger
	logger     *zap.Logger

	events    chan event
	done      chan struct{}
	initTimer *time.Timer
	closed    bool
}

// New builds a coordinator for an accepted telephony connection. The AI peer
// is attached later through OnAIOpen.
func New(id string, telephony Peer, cfg Config, policy *DisconnectPolicy, m *metrics.Metrics, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("call_id", id))
	if policy == nil {
		policy = NewDisconnectPolicy(nil)
	}
	return &Coordinator{
		id:          id,
		cfg:         cfg,
		state:       NewCallSession(),
		telephony:   telephony,
		interrupter: NewInterrupter(logger, cfg.ShowTiming),
		policy:      policy,
		metrics:     m,
		baseLogger:  logger,
		logger:      logger,
		events:      make(chan event),
		done:        make(chan struct{}),
	}
}

func (c *Coordinator) ID() string { return c.id }

// Done is closed once the session has been torn down.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

func (c *Coordinator) OnTelephonyMessage(raw []byte) {
	c.post(event{kind: evTelephonyMessage, data: raw})
}

func (c *Coordinator) OnTelephonyClose(err error) {
	c.post(event{kind: evTelephonyClosed, err: err})
}

// OnAIOpen attaches the AI peer. It reports false when the session is
// already gone, in which case the caller owns p and must close it.
func (c *Coordinator) OnAIOpen(p Peer) bool {
	return c.post(event{kind: evAIOpened, peer: p})
}

func (c *Coordinator) OnAIMessage(raw []byte) {
	c.post(event{kind: evAIMessage, data: raw})
}

func (c *Coordinator) OnAIClose(err error) {
	c.post(event{kind: evAIClosed, err: err})
}

// OnAIDialError ends the session when the AI peer could not be reached.
func (c *Coordinator) OnAIDialError(err error) {
	c.post(event{kind: evAIFailed, err: err})
}

// post hands ev to the loop. The events channel is unbuffered so nothing is
// accepted after the loop has exited.
func (c *Coordinator) post(ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// Run processes events until either peer closes or ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)
	c.metrics.SessionStarted()
	defer c.metrics.SessionEnded()
	c.logger.Info("client connected")

	for {
		select {
		case <-ctx.Done():
			c.teardown("context cancelled")
			return
		case ev := <-c.events:
			c.dispatch(ev)
			if c.closed {
				return
			}
		}
	}
}

func (c *Coordinator) dispatch(ev event) {
	switch ev.kind {
	case evTelephonyMessage:
		c.handleTelephony(ev.data)
	case evAIMessage:
		c.handleAI(ev.data)
	case evAIOpened:
		c.attachAI(ev.peer)
	case evSessionInit:
		c.initializeSession()
	case evTelephonyClosed:
		c.logger.Info("client disconnected", zap.NamedError("cause", ev.err))
		c.teardown("telephony closed")
	case evAIClosed:
		c.logger.Info("disconnected from the realtime API", zap.NamedError("cause", ev.err))
		c.teardown("ai closed")
	case evAIFailed:
		c.logger.Error("realtime API connection failed", zap.Error(ev.err))
		c.teardown("ai unavailable")
	}
}

func (c *Coordinator) attachAI(p Peer) {
	if c.closed {
		_ = p.Close()
		return
	}
	c.ai = p
	c.logger.Info("connected to the realtime API")
	c.initTimer = time.AfterFunc(c.cfg.InitDelay, func() {
		c.post(event{kind: evSessionInit})
	})
}

// initializeSession configures the AI. It deliberately does not ask the AI to
// speak; the AI waits for audio from the call.
func (c *Coordinator) initializeSession() {
	if !isOpen(c.ai) {
		return
	}
	update := wire.NewSessionUpdate(c.cfg.Voice, c.cfg.Instructions, c.cfg.Temperature)
	c.logger.Debug("sending session update", zap.String("voice", update.Session.Voice), zap.Float64("temperature", update.Session.Temperature))
	send(c.logger, c.ai, update)
}

func (c *Coordinator) handleTelephony(raw []byte) {
	msg, err := wire.DecodeTwilio(raw)
	if err != nil {
		c.metrics.Malformed("telephony")
		c.logger.Warn("error parsing telephony message", zap.Error(err), zap.ByteString("message", clip(raw)))
		return
	}

	switch msg.Event {
	case wire.EventMedia:
		c.state.LatestMediaTimestamp = int64(msg.Media.Timestamp)
		if c.cfg.ShowTiming {
			c.logger.Debug("media timestamp", zap.Int64("latest_media_ms", c.state.LatestMediaTimestamp))
		}
		chunk := msg.Chunk()
		if send(c.logger, c.ai, wire.AppendOut(chunk)) {
			c.metrics.ChunkForwarded(chunk.Direction.String())
		} else {
			c.metrics.ChunkDropped(chunk.Direction.String())
		}
	case wire.EventStart:
		c.state.StartStream(msg.Start.StreamSID)
		c.logger = c.baseLogger.With(zap.String("stream_sid", msg.Start.StreamSID))
		c.interrupter.logger = c.logger
		c.logger.Info("incoming stream has started", zap.String("call_sid", msg.Start.CallSID))
	case wire.EventMark:
		c.state.Marks.Pop()
	default:
		c.logger.Info("received non-media event", zap.String("event", msg.Event))
	}
}

func (c *Coordinator) handleAI(raw []byte) {
	ev, err := wire.DecodeRealtime(raw)
	if err != nil {
		c.metrics.Malformed("ai")
		c.logger.Warn("error processing realtime message", zap.Error(err), zap.ByteString("message", clip(raw)))
		return
	}
	if _, ok := wire.LoggedTypes[ev.Type]; ok {
		c.logger.Info("received event", zap.String("type", ev.Type), zap.ByteString("event", clip(raw)))
	}

	if phrase, hit := c.policy.Enforce(ev, c.telephony, c.ai); hit {
		c.logger.Info("disconnect phrase in AI response, hanging up",
			zap.String("phrase", phrase), zap.String("event_type", ev.Type))
		c.metrics.PolicyDisconnect(phrase)
		c.teardown("disconnect policy")
		return
	}

	switch ev.Type {
	case wire.TypeAudioDelta:
		if ev.Delta != "" {
			c.forwardAudio(ev.Chunk())
		}
	case wire.TypeSpeechStarted:
		if c.interrupter.SpeechStarted(c.state, c.ai, c.telephony) {
			c.metrics.Interrupted()
		}
	}
}

// forwardAudio plays an AI chunk on the call and tracks it with a marker.
func (c *Coordinator) forwardAudio(chunk wire.AudioChunk) {
	if c.state.StreamSID == "" {
		c.metrics.ChunkDropped(chunk.Direction.String())
		c.logger.Debug("dropping AI audio before stream start")
		return
	}
	if !send(c.logger, c.telephony, wire.MediaOut(c.state.StreamSID, chunk)) {
		c.metrics.ChunkDropped(chunk.Direction.String())
		return
	}
	c.metrics.ChunkForwarded(chunk.Direction.String())

	if c.state.MarkResponseStart() && c.cfg.ShowTiming {
		c.logger.Debug("start timestamp for new response", zap.Int64("response_start_ms", c.state.LatestMediaTimestamp))
	}
	if chunk.ItemID != "" {
		c.state.LastAssistantItem = chunk.ItemID
	}
	c.sendMark()
}

func (c *Coordinator) sendMark() {
	if c.state.StreamSID == "" {
		return
	}
	if send(c.logger, c.telephony, wire.MarkOut(c.state.StreamSID, wire.MarkResponsePart)) {
		c.state.Marks.Push(wire.MarkResponsePart)
	}
}

// teardown closes whichever peers are still open and drops session state.
// Later calls are no-ops.
func (c *Coordinator) teardown(reason string) {
	if c.closed {
		return
	}
	c.closed = true
	if c.initTimer != nil {
		c.initTimer.Stop()
	}
	if isOpen(c.telephony) {
		_ = c.telephony.Close()
	}
	if isOpen(c.ai) {
		_ = c.ai.Close()
	}
	c.state = NewCallSession()
	c.logger.Info("session closed", zap.String("reason", reason))
}

func isOpen(p Peer) bool { return p != nil && p.IsOpen() }

func send(logger *zap.Logger, p Peer, v any) bool {
	if !isOpen(p) {
		return false
	}
	if err := p.Send(v); err != nil {
		logger.Debug("send skipped", zap.Error(err))
		return false
	}
	return true
}

func clip(b []byte) []byte {
	const limit = 512
	if len(b) > limit {
		return b[:limit]
	}
	return b
}
