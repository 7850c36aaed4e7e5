// Package identity implements the shim between long-term voter credentials
// and the single-use pseudonymous tokens the ledger records votes under. The
// derivation is deterministic but unlinkable without the derivation key, so
// who is eligible stays decoupled from what they voted.
package identity

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/votelabs/voteledger/foundation/ledger/crypt"
	"github.com/votelabs/voteledger/foundation/ledger/database"
)

// Set of errors the issuer can return.
var (
	ErrAlreadyIssued = errors.New("token already issued for this credential")
	ErrNotAuthorized = errors.New("token does not belong to the signing credential")
)

// =============================================================================

// Record represents one issuance the shim performed. Records never reach the
// chain; they exist so the registration collaborator can audit issuance and
// compute participation.
type Record struct {
	CredentialID string         `json:"credential_id"` // Address form of the credential public key.
	Token        database.Token `json:"token"`         // The token derived for this credential.
	District     string         `json:"district"`      // The district the credential is registered in.
	IssuedAt     time.Time      `json:"issued_at"`     // The time the token was first issued.
}

// Issuer maps voter credentials to single-use pseudonymous voting tokens for
// a single election instance.
type Issuer struct {
	mu sync.Mutex

	electionID    string
	derivationKey []byte
	issued        map[string]Record
}

// New constructs an issuer for the specified election. The derivation key
// must match the symmetric key size used by the crypt package.
func New(electionID string, derivationKey []byte) (*Issuer, error) {
	if len(derivationKey) != crypt.KeySize {
		return nil, crypt.ErrInvalidKeyFormat
	}

	iss := Issuer{
		electionID:    electionID,
		derivationKey: derivationKey,
		issued:        make(map[string]Record),
	}

	return &iss, nil
}

// WithReissue requests idempotent re-issue: the identical token is returned
// for a credential that already holds one, instead of ErrAlreadyIssued. A new
// token is never minted for a known credential, which keeps the double-vote
// invariant meaningful.
func WithReissue() func(*IssueOptions) {
	return func(opts *IssueOptions) {
		opts.reissue = true
	}
}

// IssueOptions holds the optional settings for a call to IssueToken.
type IssueOptions struct {
	reissue bool
}

// IssueToken derives the voting token for the specified credential and
// district. The same credential always yields the same token for a given
// election. A second call for the same credential fails with ErrAlreadyIssued
// unless WithReissue is specified.
func (iss *Issuer) IssueToken(pub ecdsa.PublicKey, district string, options ...func(*IssueOptions)) (database.Token, error) {
	var opts IssueOptions
	for _, option := range options {
		option(&opts)
	}

	credentialID := crypto.PubkeyToAddress(pub).String()

	iss.mu.Lock()
	defer iss.mu.Unlock()

	if record, exists := iss.issued[credentialID]; exists {
		if opts.reissue {
			return record.Token, nil
		}
		return "", fmt.Errorf("%w: credential %s", ErrAlreadyIssued, credentialID)
	}

	token := iss.deriveToken(pub)

	iss.issued[credentialID] = Record{
		CredentialID: credentialID,
		Token:        token,
		District:     district,
		IssuedAt:     time.Now().UTC(),
	}

	return token, nil
}

// TokenFor performs the pure derivation for the specified credential without
// touching the issuance bookkeeping. Validation uses this to confirm a token
// belongs to the credential that signed a ballot.
func (iss *Issuer) TokenFor(pub ecdsa.PublicKey) database.Token {
	return iss.deriveToken(pub)
}

// Authorize confirms the specified token is the one derived for the
// specified credential. This is how a ballot signature is bound to the token
// it spends without the chain ever learning the mapping.
func (iss *Issuer) Authorize(pub ecdsa.PublicKey, token database.Token) error {
	if iss.deriveToken(pub) != token {
		return ErrNotAuthorized
	}

	return nil
}

// =============================================================================

// Participation represents registration and turnout statistics.
type Participation struct {
	Registered int                       `json:"registered"`
	Voted      int                       `json:"voted"`
	Rate       float64                   `json:"rate"`
	Districts  map[string]map[string]int `json:"districts"`
}

// Participation computes turnout statistics by checking which issued tokens
// appear in the specified spent-token index. The result aggregates counts
// only, never token or credential identities.
func (iss *Issuer) Participation(spent map[database.Token]uint64) Participation {
	iss.mu.Lock()
	defer iss.mu.Unlock()

	part := Participation{
		Districts: make(map[string]map[string]int),
	}

	for _, record := range iss.issued {
		part.Registered++

		district, exists := part.Districts[record.District]
		if !exists {
			district = map[string]int{"registered": 0, "voted": 0}
		}
		district["registered"]++

		if _, voted := spent[record.Token]; voted {
			part.Voted++
			district["voted"]++
		}

		part.Districts[record.District] = district
	}

	if part.Registered > 0 {
		part.Rate = float64(part.Voted) / float64(part.Registered) * 100
	}

	return part
}

// =============================================================================

// ExportRecords serializes the issuance records and seals them with the
// specified symmetric key for at-rest protection. Persisting the export is
// the registration collaborator's concern.
func (iss *Issuer) ExportRecords(key []byte) ([]byte, error) {
	iss.mu.Lock()
	records := make([]Record, 0, len(iss.issued))
	for _, record := range iss.issued {
		records = append(records, record)
	}
	iss.mu.Unlock()

	data, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}

	return crypt.Encrypt(key, data)
}

// ImportRecords opens an export produced by ExportRecords and loads the
// records into the issuer.
func (iss *Issuer) ImportRecords(key []byte, ciphertext []byte) error {
	data, err := crypt.Decrypt(key, ciphertext)
	if err != nil {
		return err
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}

	iss.mu.Lock()
	defer iss.mu.Unlock()

	for _, record := range records {
		iss.issued[record.CredentialID] = record
	}

	return nil
}

// =============================================================================

// deriveToken performs the keyed derivation of a token from a credential
// public key. The compressed public key bytes keep the derivation stable
// across processes.
func (iss *Issuer) deriveToken(pub ecdsa.PublicKey) database.Token {
	hash := crypto.Keccak256(iss.derivationKey, []byte(iss.electionID), crypto.CompressPubkey(&pub))
	return database.Token(hexutil.Encode(hash))
}
