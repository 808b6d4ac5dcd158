package engine

import (
	"errors"
	"sync"
)

// Token is the small, array-dense integer identifier the reactor uses for
// every connection and listener (spec §9 "Cyclic ownership": an arena
// pattern indexed by a small integer token, eliminating the lifetime/
// aliasing puzzles a shared-reference graph would otherwise create).
type Token uint32

// reservedTokens is the low range of the token space this engine never
// hands out, leaving room for sentinel/well-known values a host embedding
// this engine might want to reserve for itself (spec §4.3 "Token
// allocation": "bounded pool (default 65536 − reserved range)").
const reservedTokens = 256

// maxTokens is the size of the bounded pool named in spec §4.3.
const maxTokens = 65536

// ErrTokensExhausted is returned by Allocate once every token in the pool
// is in use (spec §4.3: "exhaustion is a hard error for new connections").
var ErrTokensExhausted = errors.New("engine: connection token pool exhausted")

// TokenAllocator hands out unique Tokens from a bounded, dense pool.
//
// This is grounded on the teacher's DiscriminatorAllocator
// (internal/bfd/discriminator.go) for its shape -- a mutex-guarded
// allocate/release pair with a hard exhaustion error -- but not its
// mechanism: BFD's discriminators must be random per RFC 5880 security
// guidance, while spec §9's arena pattern explicitly wants tokens that
// are small and array-indexable, so this allocator is a free-list over a
// dense integer range rather than a retry-until-unique random draw.
type TokenAllocator struct {
	mu   sync.Mutex
	free []Token
	next Token
}

// NewTokenAllocator builds an allocator over [reservedTokens, maxTokens).
func NewTokenAllocator() *TokenAllocator {
	return &TokenAllocator{next: reservedTokens}
}

// Allocate returns the next free Token, reusing a released one if any are
// available before minting a new one from the top of the range.
func (a *TokenAllocator) Allocate() (Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.free); n > 0 {
		t := a.free[n-1]
		a.free = a.free[:n-1]
		return t, nil
	}
	if a.next >= maxTokens {
		return 0, ErrTokensExhausted
	}
	t := a.next
	a.next++
	return t, nil
}

// Release returns t to the free list, making it available for reuse.
func (a *TokenAllocator) Release(t Token) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free = append(a.free, t)
}
