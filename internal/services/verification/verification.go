// Package verification issues and checks short-lived one-time codes sent to
// an email address or phone number.
package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// DefaultTTL is how long an issued code stays valid
const DefaultTTL = 10 * time.Minute

// Purpose is what a code authorizes
type Purpose string

const (
	PurposeLogin    Purpose = "login"
	PurposeRegister Purpose = "register"
)

// Channel is how a code was delivered
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// Reason explains a failed validation
type Reason string

const (
	ReasonNotFound Reason = "not_found"
	ReasonExpired  Reason = "expired"
	ReasonMismatch Reason = "mismatch"
)

// Result is the outcome of Validate. Purpose and Channel are set when OK.
type Result struct {
	OK      bool
	Purpose Purpose
	Channel Channel
	Reason  Reason
}

// Store holds at most one live code per target. Issuing again overwrites
// the previous code.
type Store interface {
	Issue(ctx context.Context, target string, purpose Purpose, channel Channel) (string, error)
	Validate(ctx context.Context, target, code string) (Result, error)
}

var codeSpan = big.NewInt(900000)

// GenerateCode returns a uniformly random six digit code in [100000, 999999]
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func codesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type entry struct {
	code      string
	expiresAt time.Time
	purpose   Purpose
	channel   Channel
}

// MemoryStore keeps codes in a mutex-guarded map
type MemoryStore struct {
	mu           sync.Mutex
	codes        map[string]entry
	ttl          time.Duration
	now          func() time.Time
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

// NewMemoryStore creates a store. A positive sweepInterval starts a
// background sweeper that drops expired codes; call Stop to end it.
func NewMemoryStore(ttl, sweepInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore{
		codes:       make(map[string]entry),
		ttl:         ttl,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.startCleanup(sweepInterval)
	}
	return s
}

// Issue generates and stores a new code for target
func (s *MemoryStore) Issue(_ context.Context, target string, purpose Purpose, channel Channel) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[target] = entry{
		code:      code,
		expiresAt: s.now().Add(s.ttl),
		purpose:   purpose,
		channel:   channel,
	}
	return code, nil
}

// Validate consumes the code for target if it matches and has not expired
func (s *MemoryStore) Validate(_ context.Context, target, code string) (Result, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.codes[target]
	if !ok {
		return Result{Reason: ReasonNotFound}, nil
	}
	if now.After(rec.expiresAt) {
		delete(s.codes, target)
		return Result{Reason: ReasonExpired}, nil
	}
	if !codesEqual(rec.code, code) {
		return Result{Reason: ReasonMismatch}, nil
	}

	delete(s.codes, target)
	return Result{OK: true, Purpose: rec.purpose, Channel: rec.channel}, nil
}

// Sweep deletes expired codes and returns how many were removed
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for target, rec := range s.codes {
		if now.After(rec.expiresAt) {
			delete(s.codes, target)
			removed++
		}
	}
	return removed
}

// Stop ends the background sweeper
func (s *MemoryStore) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.stopCleanup)
	})
}

func (s *MemoryStore) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCleanup:
			return
		}
	}
}
