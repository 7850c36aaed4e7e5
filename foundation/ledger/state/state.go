// Package state is the core API for the vote ledger and implements all the
// business rules and processing.
package state

import (
	"crypto/ecdsa"
	"errors"
	"sync"

	"github.com/votelabs/voteledger/foundation/ledger/database"
	"github.com/votelabs/voteledger/foundation/ledger/election"
	"github.com/votelabs/voteledger/foundation/ledger/mempool"
)

// ErrChainHalted is returned once a fatal verdict (corruption or exhausted
// proof of work) has been reached. Block production and tallying stay
// refused until the chain is externally remediated via Truncate.
var ErrChainHalted = errors.New("chain halted pending external remediation")

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of blocks and ballots.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for background mining.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
}

// Authorizer interface represents the behavior required to confirm a voting
// token belongs to the credential that signed a ballot. The identity shim
// provides the implementation; the chain never sees the mapping itself.
type Authorizer interface {
	Authorize(pub ecdsa.PublicKey, token database.Token) error
}

// =============================================================================

// Config represents the configuration required to start the ledger engine.
type Config struct {
	Election   election.Election
	Storage    database.Storage
	Authorizer Authorizer
	EvHandler  EventHandler
}

// State manages the vote ledger. All chain mutation runs through a single
// mutex so token-uniqueness checks and pool insertion form one atomic
// operation.
type State struct {
	mu sync.Mutex

	elect      election.Election
	authorizer Authorizer
	evHandler  EventHandler

	halted    bool
	haltedErr error

	mempool *mempool.Mempool
	db      *database.Database

	Worker Worker
}

// New constructs a new state value for managing the vote ledger.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	// Access the storage for the chain and rebuild the in-memory view from
	// any blocks the persistence collaborator already holds.
	db, err := database.New(cfg.Election, cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	state := State{
		elect:      cfg.Election,
		authorizer: cfg.Authorizer,
		evHandler:  ev,
		mempool:    mempool.New(),
		db:         db,
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the engine.

	return &state, nil
}

// Shutdown cleanly brings the engine down.
func (s *State) Shutdown() error {

	// Make sure the database is properly closed.
	defer func() {
		s.db.Close()
	}()

	// Stop all chain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// Truncate resets the chain, the pool, and any fatal verdict. This is the
// external remediation path after corruption has been reported: the caller
// is expected to reload from a known-good snapshot afterwards.
func (s *State) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mempool.Truncate()
	if err := s.db.Reset(); err != nil {
		return err
	}

	s.halted = false
	s.haltedErr = nil

	return nil
}

// =============================================================================

// halt records a fatal verdict. Further block production and tallying is
// refused until Truncate is called.
func (s *State) halt(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.halted {
		s.halted = true
		s.haltedErr = err
		s.evHandler("state: halt: FATAL: %s", err)
	}
}

// IsMiningAllowed reports whether block production may proceed. Mining stays
// off once a fatal verdict has been reached.
func (s *State) IsMiningAllowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return !s.halted
}

// haltedVerdict reports the fatal verdict, if one has been reached.
func (s *State) haltedVerdict() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.verdict()
}

// verdict forms the fatal verdict error. The caller must hold the state lock.
func (s *State) verdict() error {
	if !s.halted {
		return nil
	}

	return errors.Join(ErrChainHalted, s.haltedErr)
}
