package database

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/votelabs/voteledger/foundation/ledger/election"
	"github.com/votelabs/voteledger/foundation/ledger/signature"
)

// Set of errors a ballot can be rejected with. Any rejection leaves the
// chain state unchanged.
var (
	ErrInvalidToken     = errors.New("token is not properly formatted")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrUnknownCandidate = errors.New("unknown candidate")
	ErrUnknownDistrict  = errors.New("unknown district")
	ErrStaleTimestamp   = errors.New("ballot timestamp outside accepted skew window")
)

// =============================================================================

// Token represents the single-use pseudonymous identifier a vote is recorded
// under. The chain only ever sees tokens, never the credential that produced
// them.
type Token string

// ToToken converts a hex-encoded string to a token and validates the
// hex-encoded string is formatted correctly.
func ToToken(hex string) (Token, error) {
	tkn := Token(hex)
	if !tkn.IsToken() {
		return "", ErrInvalidToken
	}

	return tkn, nil
}

// IsToken verifies whether the underlying data represents a valid
// hex-encoded token.
func (t Token) IsToken() bool {
	const tokenLength = 32

	if !has0xPrefix(t) {
		return false
	}

	return len(t) == 2+2*tokenLength && isHex(t[2:])
}

// =============================================================================

// Ballot is the vote payload a voter signs. The signature covers every field
// so a committed ballot cannot be altered without detection.
type Ballot struct {
	Token     Token  `json:"token"`     // The pseudonymous identifier the vote is spent against.
	Candidate string `json:"candidate"` // The candidate identifier receiving the vote.
	District  string `json:"district"`  // The district the ballot was issued for.
	TimeStamp uint64 `json:"timestamp"` // The time the ballot was filled out.
}

// NewBallot constructs a new ballot for the specified token and candidate.
func NewBallot(token Token, candidate string, district string) (Ballot, error) {
	if !token.IsToken() {
		return Ballot{}, ErrInvalidToken
	}

	ballot := Ballot{
		Token:     token,
		Candidate: candidate,
		District:  district,
		TimeStamp: uint64(time.Now().UTC().Unix()),
	}

	return ballot, nil
}

// Sign uses the specified private key to sign the ballot.
func (b Ballot) Sign(privateKey *ecdsa.PrivateKey) (SignedBallot, error) {
	if !b.Token.IsToken() {
		return SignedBallot{}, ErrInvalidToken
	}

	// Sign the ballot with the private key to produce a signature.
	v, r, s, err := signature.Sign(b, privateKey)
	if err != nil {
		return SignedBallot{}, fmt.Errorf("signing ballot: %w", err)
	}

	// Construct the signed ballot by adding the signature
	// in the [R|S|V] format.
	signedBallot := SignedBallot{
		Ballot: b,
		V:      v,
		R:      r,
		S:      s,
	}

	return signedBallot, nil
}

// =============================================================================

// SignedBallot is a signed version of the ballot. This is how clients
// provide ballots for inclusion into the ledger.
type SignedBallot struct {
	Ballot
	V *big.Int `json:"v"` // Recovery identifier, either 31 or 32 with ledgerID.
	R *big.Int `json:"r"` // First coordinate of the ECDSA signature.
	S *big.Int `json:"s"` // Second coordinate of the ECDSA signature.
}

// Validate verifies the ballot has a proper signature, names a recognized
// candidate and district, and carries a timestamp within the accepted skew
// window around the specified time.
func (sb SignedBallot) Validate(elect election.Election, now time.Time) error {
	if !sb.Token.IsToken() {
		return ErrInvalidToken
	}

	if err := signature.VerifySignature(sb.V, sb.R, sb.S); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	if !elect.IsCandidate(sb.Candidate) {
		return fmt.Errorf("%w: %q", ErrUnknownCandidate, sb.Candidate)
	}

	if !elect.IsDistrict(sb.District) {
		return fmt.Errorf("%w: %q", ErrUnknownDistrict, sb.District)
	}

	diff := now.Sub(time.Unix(int64(sb.TimeStamp), 0).UTC())
	if diff < 0 {
		diff = -diff
	}
	if diff > elect.Skew() {
		return fmt.Errorf("%w: ballot time off by %s", ErrStaleTimestamp, diff)
	}

	return nil
}

// FromPublicKey extracts the public key of the credential that signed the
// ballot. The signature is the only place the credential ever surfaces; the
// key is checked against the token derivation and then discarded.
func (sb SignedBallot) FromPublicKey() (*ecdsa.PublicKey, error) {
	return signature.RecoverPublicKey(sb.Ballot, sb.V, sb.R, sb.S)
}

// SignatureString returns the signature as a string.
func (sb SignedBallot) SignatureString() string {
	return signature.SignatureString(sb.V, sb.R, sb.S)
}

// String implements the fmt.Stringer interface for logging. Only a token
// prefix is printed so logs never carry enough to correlate full tokens.
func (sb SignedBallot) String() string {
	return fmt.Sprintf("%s:%s", sb.Token[:10], sb.Candidate)
}

// =============================================================================

// BallotTx represents the ballot as it's recorded inside a block. The receipt
// id is handed back to the submitter so acceptance can be confirmed without
// revealing which credential produced the ballot.
type BallotTx struct {
	SignedBallot
	ReceiptID string `json:"receipt_id"` // Assigned when the ballot is accepted into the pool.
}

// NewBallotTx constructs a new ballot transaction.
func NewBallotTx(signedBallot SignedBallot) BallotTx {
	return BallotTx{
		SignedBallot: signedBallot,
		ReceiptID:    uuid.New().String(),
	}
}

// Hash returns a unique hash string for the ballot transaction.
func (tx BallotTx) Hash() string {
	return signature.Hash(tx)
}

// Equals provides an equality check between two ballot transactions. Tokens
// are single use, so two transactions carrying the same token and signature
// are the same transaction.
func (tx BallotTx) Equals(otherTx BallotTx) bool {
	txSig := signature.ToSignatureBytes(tx.V, tx.R, tx.S)
	otherTxSig := signature.ToSignatureBytes(otherTx.V, otherTx.R, otherTx.S)

	return tx.Token == otherTx.Token && bytes.Equal(txSig, otherTxSig)
}

// =============================================================================

// has0xPrefix validates the token starts with a 0x.
func has0xPrefix(t Token) bool {
	return len(t) >= 2 && t[0] == '0' && (t[1] == 'x' || t[1] == 'X')
}

// isHex validates whether each byte is a valid hexadecimal character.
func isHex(t Token) bool {
	if len(t)%2 != 0 {
		return false
	}

	for _, c := range []byte(t) {
		if !isHexCharacter(c) {
			return false
		}
	}

	return true
}

// isHexCharacter returns bool of c being a valid hexadecimal.
func isHexCharacter(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
