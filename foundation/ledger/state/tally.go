package state

import (
	"github.com/votelabs/voteledger/foundation/ledger/database"
)

// Tally aggregates one count per candidate (and per district) across all
// committed ballots. The result is unaudited: it is correct for the chain as
// stored, but nothing has confirmed the chain is untampered. Run VerifyChain
// first, or use TallyAudited, before trusting the numbers.
func (s *State) Tally() (database.Tally, error) {
	s.evHandler("state: Tally: started")
	defer s.evHandler("state: Tally: completed")

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.verdict(); err != nil {
		return database.Tally{}, err
	}

	return s.db.TallyVotes()
}

// TallyAudited runs the full-chain audit and then tallies under a single
// critical section, so the numbers describe exactly the chain that was
// audited. This is the trusted path for reading results.
func (s *State) TallyAudited() (database.Tally, error) {
	s.evHandler("state: TallyAudited: started")
	defer s.evHandler("state: TallyAudited: completed")

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.verifyChain(); err != nil {
		return database.Tally{}, err
	}

	return s.db.TallyVotes()
}
