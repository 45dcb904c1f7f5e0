package verification

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chadiek/call-relay/internal/instructions"
)

// DefaultPendingTTL bounds how long parked details wait for their stream.
const DefaultPendingTTL = 5 * time.Minute

type pendingEntry struct {
	v       instructions.Verification
	expires time.Time
}

// Pending parks details between the incoming-call webhook and the media
// stream that follows it. Each token can be taken once.
type Pending struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]pendingEntry
}

func NewPending(ttl time.Duration) *Pending {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &Pending{ttl: ttl, now: time.Now, entries: make(map[string]pendingEntry)}
}

// Put stores v and returns its token.
func (p *Pending) Put(v instructions.Verification) string {
	token := uuid.NewString()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked()
	p.entries[token] = pendingEntry{v: v, expires: p.now().Add(p.ttl)}
	return token
}

// Take removes and returns the details for token.
func (p *Pending) Take(token string) (instructions.Verification, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[token]
	if !ok {
		return instructions.Verification{}, false
	}
	delete(p.entries, token)
	if p.now().After(e.expires) {
		return instructions.Verification{}, false
	}
	return e.v, true
}

func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *Pending) sweepLocked() {
	now := p.now()
	for k, e := range p.entries {
		if now.After(e.expires) {
			delete(p.entries, k)
		}
	}
}
