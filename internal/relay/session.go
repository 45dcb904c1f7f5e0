package relay

// CallSession is the mutable state of one bridged call. It is touched only
// from the owning Coordinator's event loop.
type CallSession struct {
	// StreamSID is assigned by the telephony start event; empty until then.
	StreamSID string
	// LatestMediaTimestamp is the timestamp (ms) of the last inbound media frame.
	LatestMediaTimestamp int64
	// LastAssistantItem is the item id of the latest AI audio, empty when unset.
	LastAssistantItem string
	Marks             *MarkQueue

	responseStart    int64
	responseStartSet bool
}

func NewCallSession() *CallSession {
	return &CallSession{Marks: NewMarkQueue()}
}

// ResponseStart returns the media timestamp at which the current AI
// response started playing, and whether one is in progress.
func (s *CallSession) ResponseStart() (int64, bool) {
	return s.responseStart, s.responseStartSet
}

// MarkResponseStart pins the start of a playback segment at the current
// media timestamp unless one is already pinned.
func (s *CallSession) MarkResponseStart() bool {
	if s.responseStartSet {
		return false
	}
	s.responseStart = s.LatestMediaTimestamp
	s.responseStartSet = true
	return true
}

func (s *CallSession) ClearResponseStart() {
	s.responseStart = 0
	s.responseStartSet = false
}

// StartStream resets timing for a new telephony stream.
func (s *CallSession) StartStream(streamSID string) {
	s.StreamSID = streamSID
	s.ClearResponseStart()
	s.LatestMediaTimestamp = 0
}
