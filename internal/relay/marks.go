package relay

// MarkQueue is the FIFO of playback markers sent to telephony and not yet
// echoed back. Only its occupancy matters.
type MarkQueue struct {
	names []string
}

func NewMarkQueue() *MarkQueue { return &MarkQueue{} }

// Push records one outstanding marker.
func (q *MarkQueue) Push(name string) { q.names = append(q.names, name) }

// Pop acknowledges the oldest marker. It reports false on an empty queue.
func (q *MarkQueue) Pop() (string, bool) {
	if len(q.names) == 0 {
		return "", false
	}
	name := q.names[0]
	q.names[0] = ""
	q.names = q.names[1:]
	return name, true
}

func (q *MarkQueue) Len() int { return len(q.names) }

func (q *MarkQueue) Clear() { q.names = nil }
