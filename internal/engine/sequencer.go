package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mattsse/inscribememaybe/internal/chain"
	"github.com/mattsse/inscribememaybe/internal/retry"
)

// Sequencer issues the nonce sequence for one sender within one run. The
// first issue queries the endpoint's pending account nonce; every issue
// after that increments a local counter. Not safe for concurrent use:
// submissions for one sender are strictly ordered.
type Sequencer struct {
	client chain.Client
	sender common.Address
	policy retry.Policy
	logger *slog.Logger

	seeded bool
	next   uint64
}

func NewSequencer(client chain.Client, sender common.Address, policy retry.Policy, logger *slog.Logger) *Sequencer {
	return &Sequencer{
		client: client,
		sender: sender,
		policy: policy,
		logger: logger.With("component", "sequencer"),
	}
}

// Seed queries the sender's pending account nonce under the retry policy.
// Next calls it lazily; calling it during preflight surfaces a dead
// endpoint before any transaction is built. A failed seed is fatal for the
// run: no later transaction can be safely nonced.
func (s *Sequencer) Seed(ctx context.Context) error {
	if s.seeded {
		return nil
	}

	err := s.policy.Do(ctx, s.logger, "nonce_seed", func(ctx context.Context) error {
		nonce, err := s.client.PendingNonce(ctx, s.sender)
		if err != nil {
			return err
		}
		s.next = nonce
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed nonce for %s: %w", strings.ToLower(s.sender.Hex()), err)
	}

	s.seeded = true
	s.logger.Info("nonce sequence seeded",
		"sender", strings.ToLower(s.sender.Hex()),
		"seed", s.next,
	)
	return nil
}

// Next returns the nonce for the next transaction, incrementing the
// sequence unconditionally.
func (s *Sequencer) Next(ctx context.Context) (uint64, error) {
	if err := s.Seed(ctx); err != nil {
		return 0, err
	}
	nonce := s.next
	s.next++
	return nonce, nil
}

// Release hands the most recently issued nonce back to the sequencer, for
// rejections the endpoint signalled before the transaction could occupy
// its nonce slot. Only the top of the sequence can come back; any other
// value is refused so issued-and-possibly-broadcast nonces are never
// reused.
func (s *Sequencer) Release(nonce uint64) bool {
	if !s.seeded || s.next == 0 || nonce != s.next-1 {
		return false
	}
	s.next--
	return true
}
