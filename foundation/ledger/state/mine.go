package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/votelabs/voteledger/foundation/ledger/database"
)

// Set of errors block production can fail with.
var (
	// ErrEmptyPool is returned when a block is requested and there are no
	// pending ballots. Proof of work is never wasted on an empty block.
	ErrEmptyPool = errors.New("no ballots in mempool")

	// ErrStaleHead is returned when a block was mined against a head that
	// is no longer the latest block. The mined block is discarded and
	// mining must restart against the new head.
	ErrStaleHead = errors.New("mined block is stale, chain head moved")
)

// MineNewBlock attempts to create a new block with a proper hash that can
// become the next block in the chain. Mining runs on a snapshot of the
// current head and pool; appending the result re-validates the linkage
// under the write lock.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check pool count")

	if err := s.haltedVerdict(); err != nil {
		return database.Block{}, err
	}

	// Are there any ballots in the pool.
	if s.mempool.Count() == 0 {
		return database.Block{}, ErrEmptyPool
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW")

	// Take a snapshot of the head and a bounded batch of the pool, then
	// attempt to create a new block by solving the POW puzzle. This can be
	// cancelled.
	ballots := s.mempool.PickBest(int(s.elect.BallotsPerBlock))
	block, err := database.POW(ctx, s.elect.Difficulty, s.db.LatestBlock(), ballots, s.evHandler)
	if err != nil {
		if errors.Is(err, database.ErrPOWExhausted) {
			s.halt(err)
		}
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: update local state")

	if err := s.appendBlock(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// =============================================================================

// appendBlock takes a mined block and updates the current state of the
// chain. The previous-hash linkage is re-verified in case another block
// landed while this one was being mined.
func (s *State) appendBlock(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-verify the linkage against the head as it is now. A failure here
	// means the head moved while mining; the block is discarded and the
	// caller can re-mine against the new head.
	latestBlock := s.db.LatestBlock()
	if block.Header.PrevBlockHash != latestBlock.Hash() {
		return fmt.Errorf("%w: mined against [%s], head is [%s]", ErrStaleHead, block.Header.PrevBlockHash, latestBlock.Hash())
	}

	if err := block.ValidateBlock(latestBlock, s.evHandler); err != nil {
		return err
	}

	s.evHandler("state: appendBlock: write block to storage")

	if err := s.db.ApplyBlock(block); err != nil {
		return err
	}

	s.evHandler("state: appendBlock: remove ballots from mempool")

	for _, tx := range block.Ballots {
		s.evHandler("state: appendBlock: tx[%s] remove", tx)
		s.mempool.Delete(tx)
	}

	return nil
}
