package state

import (
	"github.com/votelabs/voteledger/foundation/ledger/database"
	"github.com/votelabs/voteledger/foundation/ledger/election"
)

// RetrieveElection returns a copy of the election configuration.
func (s *State) RetrieveElection() election.Election {
	return s.elect
}

// RetrieveLatestBlock returns a copy of the current latest block.
func (s *State) RetrieveLatestBlock() database.Block {
	return s.db.LatestBlock()
}

// RetrieveMempool returns a copy of the pending ballot pool.
func (s *State) RetrieveMempool() []database.BallotTx {
	return s.mempool.Copy()
}

// MempoolLength returns the current length of the pending pool.
func (s *State) MempoolLength() int {
	return s.mempool.Count()
}

// RetrieveSpentTokens returns a copy of the spent-token index. The identity
// collaborator uses this to compute participation without the chain ever
// learning who is behind a token.
func (s *State) RetrieveSpentTokens() map[database.Token]uint64 {
	return s.db.CopySpentTokens()
}

// RetrieveBlocks returns the blocks in the chain from the specified number
// forward. Pass 1 to walk the whole chain.
func (s *State) RetrieveBlocks(from uint64) ([]database.Block, error) {
	var blocks []database.Block

	iter := s.db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		if block.Header.Number >= from {
			blocks = append(blocks, block)
		}
	}

	return blocks, nil
}
