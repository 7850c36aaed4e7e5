package state

import (
	"fmt"

	"github.com/votelabs/voteledger/foundation/ledger/database"
	"github.com/votelabs/voteledger/foundation/ledger/signature"
)

// ChainCorruptedError reports the index of the first block that failed the
// full-chain audit. It is fatal to trust in the current chain instance.
type ChainCorruptedError struct {
	Index uint64
	Err   error
}

// Error implements the error interface.
func (e *ChainCorruptedError) Error() string {
	return fmt.Sprintf("chain corrupted at block %d: %s", e.Index, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *ChainCorruptedError) Unwrap() error {
	return e.Err
}

// =============================================================================

// VerifyChain walks every block from genesis forward, recomputing each hash,
// confirming linkage and proof-of-work validity, and recomputing every
// contained ballot's signature validity and token binding. The first
// mismatch halts the chain and yields a ChainCorruptedError carrying the
// block index. This is a full-audit pass intended to be run on demand before
// trusting a tally, not on every mutation.
func (s *State) VerifyChain() error {
	s.evHandler("state: VerifyChain: audit: started")
	defer s.evHandler("state: VerifyChain: audit: completed")

	// Hold the write lock so the audit sees either the pre- or post-append
	// chain, never a partial one.
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.verifyChain()
}

// verifyChain performs the audit walk. The caller must hold the state lock.
func (s *State) verifyChain() error {
	seen := make(map[database.Token]uint64)

	var prevBlock database.Block
	iter := s.db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return s.corrupted(prevBlock.Header.Number+1, err)
		}

		// Recompute the hash, the proof-of-work predicate, the linkage, and
		// the ballot root for this block.
		if err := block.ValidateBlock(prevBlock, s.evHandler); err != nil {
			return s.corrupted(block.Header.Number, err)
		}

		// Recompute every ballot's signature and token binding.
		for _, tx := range block.Ballots {
			if err := s.auditBallot(tx); err != nil {
				return s.corrupted(block.Header.Number, err)
			}

			if at, exists := seen[tx.Token]; exists {
				return s.corrupted(block.Header.Number, fmt.Errorf("%w: also in block %d", database.ErrDoubleVote, at))
			}
			seen[tx.Token] = block.Header.Number
		}

		prevBlock = block
	}

	return nil
}

// =============================================================================

// auditBallot re-validates a committed ballot. The timestamp skew check does
// not apply here: committed ballots were checked against the window at
// submission time and must keep auditing clean forever after.
func (s *State) auditBallot(tx database.BallotTx) error {
	if !tx.Token.IsToken() {
		return database.ErrInvalidToken
	}

	if err := signature.VerifySignature(tx.V, tx.R, tx.S); err != nil {
		return fmt.Errorf("%w: %s", database.ErrInvalidSignature, err)
	}

	pub, err := tx.FromPublicKey()
	if err != nil {
		return fmt.Errorf("%w: %s", database.ErrInvalidSignature, err)
	}

	if err := s.authorizer.Authorize(*pub, tx.Token); err != nil {
		return err
	}

	if !s.elect.IsCandidate(tx.Candidate) {
		return fmt.Errorf("%w: %q", database.ErrUnknownCandidate, tx.Candidate)
	}

	return nil
}

// corrupted records the fatal verdict and forms the audit error. The caller
// already holds the state lock, so the halt fields are set directly.
func (s *State) corrupted(index uint64, err error) error {
	cerr := &ChainCorruptedError{Index: index, Err: err}

	if !s.halted {
		s.halted = true
		s.haltedErr = cerr
		s.evHandler("state: VerifyChain: FATAL: %s", cerr)
	}

	return cerr
}
