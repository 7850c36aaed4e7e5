package state

import (
	"fmt"
	"time"

	"github.com/votelabs/voteledger/foundation/ledger/database"
)

// SubmitBallot runs the ballot through validation, checks its token against
// both committed blocks and the pending pool, and enqueues it for the next
// block. A rejection leaves the chain state unchanged. The returned
// transaction carries the receipt id assigned to the accepted ballot.
func (s *State) SubmitBallot(signedBallot database.SignedBallot) (database.BallotTx, error) {
	s.evHandler("state: SubmitBallot: started: ballot[%s]", signedBallot)
	defer s.evHandler("state: SubmitBallot: completed")

	// Validate the signature, candidate, district, and timestamp skew.
	if err := signedBallot.Validate(s.elect, time.Now().UTC()); err != nil {
		return database.BallotTx{}, err
	}

	// Recover the signing credential and confirm the token being spent is
	// the one derived for it. The credential goes no further than this check.
	pub, err := signedBallot.FromPublicKey()
	if err != nil {
		return database.BallotTx{}, fmt.Errorf("%w: %s", database.ErrInvalidSignature, err)
	}

	if err := s.authorizer.Authorize(*pub, signedBallot.Token); err != nil {
		return database.BallotTx{}, err
	}

	// The double-vote check and the pool insert must be one atomic
	// operation, so concurrent submissions with the same token can't race
	// past each other.
	s.mu.Lock()
	defer s.mu.Unlock()

	if blockNum, spent := s.db.Spent(signedBallot.Token); spent {
		return database.BallotTx{}, fmt.Errorf("%w: committed in block %d", database.ErrDoubleVote, blockNum)
	}

	tx := database.NewBallotTx(signedBallot)

	count, err := s.mempool.Insert(tx)
	if err != nil {
		return database.BallotTx{}, fmt.Errorf("%w: pending in pool", err)
	}

	s.evHandler("state: SubmitBallot: accepted: receipt[%s]: pool[%d]", tx.ReceiptID, count)

	if s.Worker != nil {
		s.Worker.SignalStartMining()
	}

	return tx, nil
}
