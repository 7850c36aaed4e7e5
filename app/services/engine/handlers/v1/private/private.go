// Package private maintains the group of handlers for registration and
// administrative access. These routes bind to a separate host so the voting
// surface never exposes them.
package private

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/votelabs/voteledger/business/web/errs"
	"github.com/votelabs/voteledger/foundation/ledger/identity"
	"github.com/votelabs/voteledger/foundation/ledger/state"
	"github.com/votelabs/voteledger/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of registration and administration endpoints.
type Handlers struct {
	Log    *zap.SugaredLogger
	State  *state.State
	Issuer *identity.Issuer
}

// issueToken is the request to derive a voting token for a credential.
type issueToken struct {
	PublicKey string `json:"public_key" validate:"required"`
	District  string `json:"district" validate:"required"`
	Reissue   bool   `json:"reissue"`
}

// exportRecords carries the symmetric key that seals the issuance export.
type exportRecords struct {
	Key string `json:"key" validate:"required"`
}

// IssueToken derives and records a voting token for the specified credential.
func (h Handlers) IssueToken(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var it issueToken
	if err := web.Decode(r, &it); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	pub, err := parsePublicKey(it.PublicKey)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if elect := h.State.RetrieveElection(); !elect.IsDistrict(it.District) {
		return errs.NewTrusted(fmt.Errorf("unknown district %q", it.District), http.StatusBadRequest)
	}

	var options []func(*identity.IssueOptions)
	if it.Reissue {
		options = append(options, identity.WithReissue())
	}

	h.Log.Infow("issue token", "traceid", v.TraceID, "district", it.District, "reissue", it.Reissue)
	token, err := h.Issuer.IssueToken(*pub, it.District, options...)
	if err != nil {
		if errors.Is(err, identity.ErrAlreadyIssued) {
			return errs.NewTrusted(err, http.StatusConflict)
		}
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Token string `json:"token"`
	}{
		Token: string(token),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// VerifyChain runs the full chain audit and reports the verdict.
func (h Handlers) VerifyChain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latestBlock := h.State.RetrieveLatestBlock()

	if err := h.State.VerifyChain(); err != nil {
		var cerr *state.ChainCorruptedError
		if errors.As(err, &cerr) {
			resp := struct {
				Status string `json:"status"`
				Index  uint64 `json:"corrupted_at"`
				Detail string `json:"detail"`
			}{
				Status: "corrupted",
				Index:  cerr.Index,
				Detail: cerr.Error(),
			}
			return web.Respond(ctx, w, resp, http.StatusConflict)
		}
		return err
	}

	resp := struct {
		Status      string `json:"status"`
		LatestBlock uint64 `json:"latest_block"`
	}{
		Status:      "verified",
		LatestBlock: latestBlock.Header.Number,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Participation returns registration and turnout statistics. Counts only,
// never token or credential identities.
func (h Handlers) Participation(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	part := h.Issuer.Participation(h.State.RetrieveSpentTokens())
	return web.Respond(ctx, w, part, http.StatusOK)
}

// Truncate resets the chain and clears any fatal verdict. This is the
// remediation path after corruption has been reported.
func (h Handlers) Truncate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.Log.Infow("truncate chain", "traceid", v.TraceID)
	if err := h.State.Truncate(); err != nil {
		return err
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "chain truncated",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ExportRecords seals the issuance records with the provided key and returns
// the ciphertext for the registration collaborator to persist.
func (h Handlers) ExportRecords(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var er exportRecords
	if err := web.Decode(r, &er); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	key, err := hexutil.Decode(er.Key)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("decoding key: %w", err), http.StatusBadRequest)
	}

	ciphertext, err := h.Issuer.ExportRecords(key)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Records string `json:"records"`
	}{
		Records: hexutil.Encode(ciphertext),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

// parsePublicKey accepts a hex-encoded credential public key in either the
// 33 byte compressed or 65 byte uncompressed form.
func parsePublicKey(hexKey string) (*ecdsa.PublicKey, error) {
	data, err := hexutil.Decode(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding public key: %w", err)
	}

	switch len(data) {
	case 33:
		return crypto.DecompressPubkey(data)
	case 65:
		return crypto.UnmarshalPubkey(data)
	}

	return nil, fmt.Errorf("public key must be 33 or 65 bytes, got %d", len(data))
}
