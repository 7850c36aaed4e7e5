// Package mempool maintains the pool of ballots waiting to be sealed into
// the next block.
package mempool

import (
	"sort"
	"sync"

	"github.com/votelabs/voteledger/foundation/ledger/database"
)

// Mempool represents a cache of pending ballots organized by token. A token
// can appear at most once; the double-vote check against the pool reduces to
// a map lookup.
type Mempool struct {
	pool map[database.Token]database.BallotTx
	mu   sync.RWMutex
}

// New constructs a new mempool for pending ballots.
func New() *Mempool {
	mp := Mempool{
		pool: make(map[database.Token]database.BallotTx),
	}

	return &mp
}

// Count returns the current number of ballots in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Contains reports whether a ballot for the specified token is pending.
func (mp *Mempool) Contains(token database.Token) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[token]
	return exists
}

// Insert adds a ballot to the mempool. A ballot whose token is already
// pending is rejected with ErrDoubleVote.
func (mp *Mempool) Insert(tx database.BallotTx) (int, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[tx.Token]; exists {
		return len(mp.pool), database.ErrDoubleVote
	}

	mp.pool[tx.Token] = tx

	return len(mp.pool), nil
}

// Delete removes a ballot from the mempool.
func (mp *Mempool) Delete(tx database.BallotTx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, tx.Token)
}

// Truncate clears all the ballots from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[database.Token]database.BallotTx)
}

// PickBest returns at most howMany pending ballots for the next block,
// oldest first so no ballot starves. Pass -1 for the entire pool.
func (mp *Mempool) PickBest(howMany int) []database.BallotTx {
	mp.mu.RLock()
	txs := make([]database.BallotTx, 0, len(mp.pool))
	for _, tx := range mp.pool {
		txs = append(txs, tx)
	}
	mp.mu.RUnlock()

	sort.Slice(txs, func(i, j int) bool {
		if txs[i].TimeStamp != txs[j].TimeStamp {
			return txs[i].TimeStamp < txs[j].TimeStamp
		}
		return txs[i].Token < txs[j].Token
	})

	if howMany == -1 || howMany > len(txs) {
		howMany = len(txs)
	}

	return txs[:howMany]
}

// Copy returns a list of the current ballots in the pool.
func (mp *Mempool) Copy() []database.BallotTx {
	return mp.PickBest(-1)
}
