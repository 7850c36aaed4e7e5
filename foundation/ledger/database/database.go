// Package database handles all the lower level support for maintaining the
// vote ledger in memory and the spent-token index that enforces one vote
// per token.
package database

import (
	"errors"
	"fmt"
	"sync"

	"github.com/votelabs/voteledger/foundation/ledger/election"
)

// ErrDoubleVote is returned when a token already appears in a committed
// block or in the pending pool.
var ErrDoubleVote = errors.New("token has already been spent")

// =============================================================================

// Storage interface represents the behavior required to be implemented by any
// package providing support for storing and reading the chain. The choice of
// medium is the persistence collaborator's concern.
type Storage interface {
	Write(blockData BlockData) error
	GetBlock(num uint64) (BlockData, error)
	ForEach() Iterator
	Close() error
	Reset() error
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the blocks.
type Iterator interface {
	Next() (BlockData, error)
	Done() bool
}

// =============================================================================

// DatabaseIterator provides support for iterating over the blocks in the
// database as block values.
type DatabaseIterator struct {
	iterator Iterator
}

// Next retrieves the next block from storage.
func (di *DatabaseIterator) Next() (Block, error) {
	blockData, err := di.iterator.Next()
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData), nil
}

// Done returns the end of chain value.
func (di *DatabaseIterator) Done() bool {
	return di.iterator.Done()
}

// =============================================================================

// Database manages data related to blocks and the tokens that have been
// spent on the chain.
type Database struct {
	mu sync.RWMutex

	elect       election.Election
	latestBlock Block
	spent       map[Token]uint64

	storage Storage
}

// New constructs a new database value and loads any existing blocks from
// storage, rebuilding the spent-token index as it goes.
func New(elect election.Election, storage Storage, evHandler func(v string, args ...any)) (*Database, error) {
	db := Database{
		elect:   elect,
		spent:   make(map[Token]uint64),
		storage: storage,
	}

	// Read any existing blocks from storage, validating the linkage and
	// recording spent tokens along the way.
	var latestBlock Block

	iter := db.storage.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		block := ToBlock(blockData)
		if err := block.ValidateBlock(latestBlock, evHandler); err != nil {
			return nil, err
		}

		for _, tx := range block.Ballots {
			if _, exists := db.spent[tx.Token]; exists {
				return nil, fmt.Errorf("block %d: %w: %s", block.Header.Number, ErrDoubleVote, tx.Token)
			}
			db.spent[tx.Token] = block.Header.Number
		}

		latestBlock = block
	}

	db.latestBlock = latestBlock

	return &db, nil
}

// Close closes the underlying storage.
func (db *Database) Close() {
	db.storage.Close()
}

// Reset re-initializes the database back to an empty chain. This is the
// external remediation path after a corruption verdict.
func (db *Database) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.storage.Reset(); err != nil {
		return err
	}

	db.latestBlock = Block{}
	db.spent = make(map[Token]uint64)

	return nil
}

// Spent reports whether the specified token appears in a committed block and
// if so, in which block.
func (db *Database) Spent(token Token) (blockNum uint64, exists bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	blockNum, exists = db.spent[token]
	return blockNum, exists
}

// CopySpentTokens makes a copy of the current spent-token index.
func (db *Database) CopySpentTokens() map[Token]uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	spent := make(map[Token]uint64, len(db.spent))
	for token, blockNum := range db.spent {
		spent[token] = blockNum
	}

	return spent
}

// ApplyBlock writes the block to storage and records its tokens as spent.
// The block must already be validated against the latest block.
func (db *Database) ApplyBlock(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, tx := range block.Ballots {
		if blockNum, exists := db.spent[tx.Token]; exists {
			return fmt.Errorf("block %d: %w: already in block %d", block.Header.Number, ErrDoubleVote, blockNum)
		}
	}

	if err := db.storage.Write(NewBlockData(block)); err != nil {
		return err
	}

	for _, tx := range block.Ballots {
		db.spent[tx.Token] = block.Header.Number
	}
	db.latestBlock = block

	return nil
}

// LatestBlock returns the latest committed block.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 1.
func (db *Database) ForEach() DatabaseIterator {
	return DatabaseIterator{iterator: db.storage.ForEach()}
}

// GetBlock locates and returns the specified block by number.
func (db *Database) GetBlock(num uint64) (Block, error) {
	blockData, err := db.storage.GetBlock(num)
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData), nil
}

// =============================================================================

// Tally represents the aggregate vote counts derived from the committed
// ballots.
type Tally struct {
	Candidates map[string]int            `json:"candidates"`
	Districts  map[string]map[string]int `json:"districts"`
	Ballots    int                       `json:"ballots"`
}

// TallyVotes aggregates one count per candidate across all committed ballots.
// The per-token uniqueness invariant guarantees no ballot is counted twice.
// The result is unaudited unless the caller has verified the chain first.
func (db *Database) TallyVotes() (Tally, error) {
	tally := Tally{
		Candidates: make(map[string]int),
		Districts:  make(map[string]map[string]int),
	}

	for _, candidate := range db.elect.Candidates {
		tally.Candidates[candidate] = 0
	}
	for _, district := range db.elect.Districts {
		tally.Districts[district] = make(map[string]int)
		for _, candidate := range db.elect.Candidates {
			tally.Districts[district][candidate] = 0
		}
	}

	iter := db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return Tally{}, err
		}

		for _, tx := range block.Ballots {
			tally.Candidates[tx.Candidate]++
			if _, exists := tally.Districts[tx.District]; exists {
				tally.Districts[tx.District][tx.Candidate]++
			}
			tally.Ballots++
		}
	}

	return tally, nil
}
