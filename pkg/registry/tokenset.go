package registry

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// TokenSet is the eligibility-only view a destination bridge keeps. Limits are
// enforced on the sending side, so only membership is tracked here.
type TokenSet struct {
	tokens map[common.Address]struct{}
}

func NewTokenSet() *TokenSet {
	return &TokenSet{tokens: make(map[common.Address]struct{})}
}

func (s *TokenSet) Add(token common.Address) error {
	if token == (common.Address{}) {
		return ErrZeroAddress
	}
	if _, ok := s.tokens[token]; ok {
		return fmt.Errorf("%w: %s", ErrTokenAlreadySupported, token.Hex())
	}
	s.tokens[token] = struct{}{}
	return nil
}

func (s *TokenSet) Remove(token common.Address) error {
	if _, ok := s.tokens[token]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedToken, token.Hex())
	}
	delete(s.tokens, token)
	return nil
}

func (s *TokenSet) Contains(token common.Address) bool {
	_, ok := s.tokens[token]
	return ok
}

// Tokens returns the members in address order.
func (s *TokenSet) Tokens() []common.Address {
	out := make([]common.Address, 0, len(s.tokens))
	for token := range s.tokens {
		out = append(out, token)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Restore replaces the members. Duplicates and the zero address are rejected.
func (s *TokenSet) Restore(tokens []common.Address) error {
	next := make(map[common.Address]struct{}, len(tokens))
	for _, token := range tokens {
		if token == (common.Address{}) {
			return ErrZeroAddress
		}
		if _, ok := next[token]; ok {
			return fmt.Errorf("%w: %s", ErrTokenAlreadySupported, token.Hex())
		}
		next[token] = struct{}{}
	}
	s.tokens = next
	return nil
}
