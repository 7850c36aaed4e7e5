// Package public maintains the group of handlers for voter access.
package public

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/votelabs/voteledger/business/web/errs"
	"github.com/votelabs/voteledger/foundation/events"
	"github.com/votelabs/voteledger/foundation/ledger/database"
	"github.com/votelabs/voteledger/foundation/ledger/state"
	"github.com/votelabs/voteledger/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of vote ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
	WS    websocket.Upgrader
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitBallot adds a new signed ballot to the pending pool.
func (h Handlers) SubmitBallot(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var sb submitBallot
	if err := web.Decode(r, &sb); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	signedBallot := database.SignedBallot{
		Ballot: database.Ballot{
			Token:     database.Token(sb.Token),
			Candidate: sb.Candidate,
			District:  sb.District,
			TimeStamp: sb.TimeStamp,
		},
		V: sb.V,
		R: sb.R,
		S: sb.S,
	}

	h.Log.Infow("add ballot", "traceid", v.TraceID, "ballot", signedBallot)
	tx, err := h.State.SubmitBallot(signedBallot)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status  string `json:"status"`
		Receipt string `json:"receipt_id"`
	}{
		Status:  "ballot added to pool",
		Receipt: tx.ReceiptID,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Election returns the election configuration this engine is running.
func (h Handlers) Election(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	elect := h.State.RetrieveElection()
	return web.Respond(ctx, w, elect, http.StatusOK)
}

// Tally returns the current per-candidate totals from committed blocks.
func (h Handlers) Tally(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tally, err := h.State.Tally()
	if err != nil {
		return errs.NewTrusted(err, http.StatusConflict)
	}

	return web.Respond(ctx, w, tally, http.StatusOK)
}

// TallyAudited runs a full chain audit and, only if that passes, returns
// the per-candidate totals.
func (h Handlers) TallyAudited(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tally, err := h.State.TallyAudited()
	if err != nil {
		return errs.NewTrusted(err, http.StatusConflict)
	}

	return web.Respond(ctx, w, tally, http.StatusOK)
}

// Mempool returns the set of uncommitted ballots.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	mempool := h.State.RetrieveMempool()

	ballots := make([]ballot, len(mempool))
	for i, tx := range mempool {
		ballots[i] = toBallot(tx)
	}

	return web.Respond(ctx, w, ballots, http.StatusOK)
}

// BlocksList returns all the blocks from the specified number forward.
func (h Handlers) BlocksList(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	fromStr := web.Param(r, "from")
	if fromStr == "" || fromStr == "genesis" {
		fromStr = "1"
	}

	from, err := strconv.ParseUint(fromStr, 10, 64)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	dbBlocks, err := h.State.RetrieveBlocks(from)
	if err != nil {
		return err
	}
	if len(dbBlocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(dbBlocks))
	for i, blk := range dbBlocks {
		ballots := make([]ballot, len(blk.Ballots))
		for j, tx := range blk.Ballots {
			ballots[j] = toBallot(tx)
		}

		blocks[i] = block{
			Hash:          blk.Hash(),
			Number:        blk.Header.Number,
			PrevBlockHash: blk.Header.PrevBlockHash,
			TimeStamp:     blk.Header.TimeStamp,
			Nonce:         blk.Header.Nonce,
			Difficulty:    blk.Header.Difficulty,
			BallotRoot:    blk.Header.BallotRoot,
			Ballots:       ballots,
		}
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// =============================================================================

func toBallot(tx database.BallotTx) ballot {
	return ballot{
		ReceiptID: tx.ReceiptID,
		Token:     string(tx.Token),
		Candidate: tx.Candidate,
		District:  tx.District,
		TimeStamp: tx.TimeStamp,
		Sig:       tx.SignatureString(),
	}
}
