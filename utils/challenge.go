package utils

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChallengeStore keeps the pending sign-in message per address. A message is
// single use and expires after ttl.
type ChallengeStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	pending map[string]challenge
	now     func() time.Time
}

type challenge struct {
	message string
	expires time.Time
}

func NewChallengeStore(ttl time.Duration) *ChallengeStore {
	return &ChallengeStore{
		ttl:     ttl,
		pending: make(map[string]challenge),
		now:     time.Now,
	}
}

// Issue replaces any earlier challenge for address.
func (s *ChallengeStore) Issue(address string) (string, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for addr, ch := range s.pending {
		if now.After(ch.expires) {
			delete(s.pending, addr)
		}
	}
	ch := challenge{
		message: LoginMessage(address, uuid.NewString()),
		expires: now.Add(s.ttl),
	}
	s.pending[address] = ch
	return ch.message, ch.expires
}

// Consume returns the live challenge for address and removes it.
func (s *ChallengeStore) Consume(address string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.pending[address]
	if !ok {
		return "", false
	}
	delete(s.pending, address)
	if s.now().After(ch.expires) {
		return "", false
	}
	return ch.message, true
}
