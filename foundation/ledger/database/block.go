package database

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/votelabs/voteledger/foundation/ledger/signature"
)

// ErrPOWExhausted is returned when the full nonce space has been searched
// without finding a solution. This can only happen when the difficulty is
// unreachable within the nonce domain, so it signals a configuration error
// and is fatal to the chain instance, never a retry target.
var ErrPOWExhausted = errors.New("proof of work exhausted nonce space, difficulty unreachable")

// hashMatch is the longest run of leading zero hex characters a difficulty
// can demand from a block hash. Difficulties past this width can never be
// satisfied.
const hashMatch = "0x00000000000000000"

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Number        uint64 `json:"number"`          // Block number in the chain.
	PrevBlockHash string `json:"prev_block_hash"` // Hash of the previous block in the chain.
	TimeStamp     uint64 `json:"timestamp"`       // Time the block was mined.
	Nonce         uint64 `json:"nonce"`           // Value identified to solve the hash solution.
	Difficulty    uint16 `json:"difficulty"`      // Number of leading 0's needed to solve the hash solution.
	BallotRoot    string `json:"ballot_root"`     // Hash of the ordered ballot list sealed in this block.
}

// Block represents a group of ballots batched together.
type Block struct {
	Header  BlockHeader
	Ballots []BallotTx
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle.
func POW(ctx context.Context, difficulty uint16, prevBlock Block, ballots []BallotTx, evHandler func(v string, args ...any)) (Block, error) {

	// When mining the first block, the previous block's hash will be
	// the genesis sentinel.
	prevBlockHash := signature.ZeroHash
	if prevBlock.Header.Number > 0 {
		prevBlockHash = prevBlock.Hash()
	}

	// Construct the block to be mined. The ballot root seals the ordered
	// ballot list into the header so the header hash covers every ballot.
	nb := Block{
		Header: BlockHeader{
			Number:        prevBlock.Header.Number + 1,
			PrevBlockHash: prevBlockHash,
			TimeStamp:     uint64(time.Now().UTC().Unix()),
			Nonce:         0, // Will be identified by the POW algorithm.
			Difficulty:    difficulty,
			BallotRoot:    signature.Hash(ballots),
		},
		Ballots: ballots,
	}

	// Perform the proof of work mining operation.
	if err := nb.performPOW(ctx, evHandler); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for a specified
// block. Pointer semantics are being used since a nonce is being discovered.
func (b *Block) performPOW(ctx context.Context, ev func(v string, args ...any)) error {
	ev("database: performPOW: MINING: started")
	defer ev("database: performPOW: MINING: completed")

	for _, tx := range b.Ballots {
		ev("database: performPOW: MINING: tx[%s]", tx)
	}

	// A difficulty past the match width can never be satisfied. Fail the
	// same way an exhausted search would instead of burning the nonce domain.
	if 2+int(b.Header.Difficulty) > len(hashMatch) {
		return ErrPOWExhausted
	}

	// Walk the nonce space in order starting at zero. The search is
	// deterministic for a given batch of ballots and previous block.
	var attempts uint64
	for b.Header.Nonce = 0; ; b.Header.Nonce++ {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: performPOW: MINING: attempts[%d]", attempts)
		}

		// Did the caller cancel the search.
		if ctx.Err() != nil {
			ev("database: performPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		// Hash the block and check if we have solved the puzzle.
		hash := b.Hash()
		if isHashSolved(b.Header.Difficulty, hash) {
			ev("database: performPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", b.Header.PrevBlockHash, hash)
			ev("database: performPOW: MINING: attempts[%d]", attempts)
			return nil
		}

		// The entire nonce domain was searched without a solution.
		if b.Header.Nonce == math.MaxUint64 {
			return ErrPOWExhausted
		}
	}
}

// Hash returns the unique hash for the Block. Hashing the header and not the
// whole block works because the ballot root inside the header seals the
// ballot list.
func (b Block) Hash() string {
	if b.Header.Number == 0 {
		return signature.ZeroHash
	}

	return signature.Hash(b.Header)
}

// ValidateBlock takes a block and validates it to be included into the chain.
func (b Block) ValidateBlock(previousBlock Block, evHandler func(v string, args ...any)) error {
	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash has been solved", b.Header.Number)

	hash := b.Hash()
	if !isHashSolved(b.Header.Difficulty, hash) {
		return fmt.Errorf("%s invalid block hash", hash)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block number is the next number", b.Header.Number)

	nextNumber := previousBlock.Header.Number + 1
	if b.Header.Number != nextNumber {
		return fmt.Errorf("this block is not the next number, got %d, exp %d", b.Header.Number, nextNumber)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Header.Number)

	if b.Header.PrevBlockHash != previousBlock.Hash() {
		return fmt.Errorf("parent block hash doesn't match our known parent, got %s, exp %s", b.Header.PrevBlockHash, previousBlock.Hash())
	}

	if previousBlock.Header.TimeStamp > 0 {
		evHandler("database: ValidateBlock: validate: blk[%d]: check: block's timestamp is not before parent block's timestamp", b.Header.Number)

		parentTime := time.Unix(int64(previousBlock.Header.TimeStamp), 0)
		blockTime := time.Unix(int64(b.Header.TimeStamp), 0)
		if blockTime.Before(parentTime) {
			return fmt.Errorf("block timestamp is before parent block, parent %s, block %s", parentTime, blockTime)
		}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: ballot root does match ballots", b.Header.Number)

	if b.Header.BallotRoot != signature.Hash(b.Ballots) {
		return fmt.Errorf("ballot root does not match ballots, got %s, exp %s", signature.Hash(b.Ballots), b.Header.BallotRoot)
	}

	return nil
}

// isHashSolved checks the hash to make sure it complies with
// the POW rules. We need to match a difficulty number of 0's.
func isHashSolved(difficulty uint16, hash string) bool {
	if len(hash) != 66 {
		return false
	}

	if 2+int(difficulty) > len(hashMatch) {
		return false
	}

	return hash[:2+difficulty] == hashMatch[:2+difficulty]
}

// =============================================================================

// BlockData represents what can be serialized to disk and over the network.
// The field order is fixed so recomputed hashes match across processes.
type BlockData struct {
	Hash    string      `json:"hash"`
	Header  BlockHeader `json:"block"`
	Ballots []BallotTx  `json:"ballots"`
}

// NewBlockData constructs block data from a block.
func NewBlockData(block Block) BlockData {
	blockData := BlockData{
		Hash:    block.Hash(),
		Header:  block.Header,
		Ballots: block.Ballots,
	}

	return blockData
}

// ToBlock converts a storage block into a database block.
func ToBlock(blockData BlockData) Block {
	block := Block{
		Header:  blockData.Header,
		Ballots: blockData.Ballots,
	}

	return block
}
