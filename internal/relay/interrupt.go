package relay

import (
	"go.uber.org/zap"

	"github.com/chadiek/call-relay/internal/wire"
)

// Interrupter handles caller barge-in while AI audio is playing: it tells the
// AI how much of its item was actually heard and flushes telephony playback.
type Interrupter struct {
	logger     *zap.Logger
	showTiming bool
}

func NewInterrupter(logger *zap.Logger, showTiming bool) *Interrupter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interrupter{logger: logger, showTiming: showTiming}
}

// SpeechStarted runs the truncate/clear/reset sequence. It is a no-op unless
// markers are outstanding and a response start is pinned. It reports whether
// an interruption was processed.
func (i *Interrupter) SpeechStarted(s *CallSession, ai, telephony Peer) bool {
	start, ok := s.ResponseStart()
	if s.Marks.Len() == 0 || !ok {
		return false
	}
	elapsed := s.LatestMediaTimestamp - start
	if i.showTiming {
		i.logger.Debug("truncation elapsed",
			zap.Int64("latest_media_ms", s.LatestMediaTimestamp),
			zap.Int64("response_start_ms", start),
			zap.Int64("elapsed_ms", elapsed))
	}

	if s.LastAssistantItem != "" {
		truncate := wire.TruncateOut(s.LastAssistantItem, elapsed)
		if i.showTiming {
			i.logger.Debug("sending truncation", zap.String("item_id", truncate.ItemID), zap.Int64("audio_end_ms", truncate.AudioEndMs))
		}
		send(i.logger, ai, truncate)
	}
	send(i.logger, telephony, wire.ClearOut(s.StreamSID))

	s.Marks.Clear()
	s.LastAssistantItem = ""
	s.ClearResponseStart()
	return true
}
