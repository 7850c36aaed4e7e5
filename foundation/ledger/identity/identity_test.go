package identity_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/votelabs/voteledger/foundation/ledger/crypt"
	"github.com/votelabs/voteledger/foundation/ledger/database"
	"github.com/votelabs/voteledger/foundation/ledger/identity"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const electionID = "2026-city-council"

func newIssuer(t *testing.T) *identity.Issuer {
	key := bytes.Repeat([]byte{0x01}, crypt.KeySize)

	iss, err := identity.New(electionID, key)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct an issuer: %s", failed, err)
	}

	return iss
}

func Test_Issuance(t *testing.T) {
	t.Log("Given the need to validate token issuance.")
	{
		t.Log("\tWhen issuing a token for a credential.")
		{
			iss := newIssuer(t)

			pk, err := crypto.GenerateKey()
			if err != nil {
				t.Fatalf("\t%s\tShould be able to generate a credential: %s", failed, err)
			}

			token, err := iss.IssueToken(pk.PublicKey, "north")
			if err != nil {
				t.Fatalf("\t%s\tShould be able to issue a token: %s", failed, err)
			}
			t.Logf("\t%s\tShould be able to issue a token.", success)

			if !token.IsToken() {
				t.Fatalf("\t%s\tShould get back a properly formatted token: %s", failed, token)
			}
			t.Logf("\t%s\tShould get back a properly formatted token.", success)

			if _, err := iss.IssueToken(pk.PublicKey, "north"); !errors.Is(err, identity.ErrAlreadyIssued) {
				t.Fatalf("\t%s\tShould refuse a second issuance: %v", failed, err)
			}
			t.Logf("\t%s\tShould refuse a second issuance.", success)

			token2, err := iss.IssueToken(pk.PublicKey, "north", identity.WithReissue())
			if err != nil {
				t.Fatalf("\t%s\tShould be able to reissue: %s", failed, err)
			}
			if token2 != token {
				t.Logf("\t%s\tgot: %s", failed, token2)
				t.Logf("\t%s\texp: %s", failed, token)
				t.Fatalf("\t%s\tShould get back the identical token on reissue.", failed)
			}
			t.Logf("\t%s\tShould get back the identical token on reissue.", success)
		}
	}
}

func Test_Determinism(t *testing.T) {
	t.Log("Given the need to validate the derivation is deterministic.")
	{
		t.Log("\tWhen deriving twice for the same credential and election.")
		{
			pk, err := crypto.GenerateKey()
			if err != nil {
				t.Fatalf("\t%s\tShould be able to generate a credential: %s", failed, err)
			}

			iss1 := newIssuer(t)
			iss2 := newIssuer(t)

			if iss1.TokenFor(pk.PublicKey) != iss2.TokenFor(pk.PublicKey) {
				t.Fatalf("\t%s\tShould derive the same token across issuer instances.", failed)
			}
			t.Logf("\t%s\tShould derive the same token across issuer instances.", success)

			other, err := identity.New("2026-school-board", bytes.Repeat([]byte{0x01}, crypt.KeySize))
			if err != nil {
				t.Fatalf("\t%s\tShould be able to construct an issuer: %s", failed, err)
			}

			if iss1.TokenFor(pk.PublicKey) == other.TokenFor(pk.PublicKey) {
				t.Fatalf("\t%s\tShould derive different tokens for different elections.", failed)
			}
			t.Logf("\t%s\tShould derive different tokens for different elections.", success)
		}
	}
}

func Test_Authorize(t *testing.T) {
	t.Log("Given the need to bind tokens to credentials.")
	{
		t.Log("\tWhen checking a token against credentials.")
		{
			iss := newIssuer(t)

			pk1, err := crypto.GenerateKey()
			if err != nil {
				t.Fatalf("\t%s\tShould be able to generate a credential: %s", failed, err)
			}
			pk2, err := crypto.GenerateKey()
			if err != nil {
				t.Fatalf("\t%s\tShould be able to generate a credential: %s", failed, err)
			}

			token, err := iss.IssueToken(pk1.PublicKey, "north")
			if err != nil {
				t.Fatalf("\t%s\tShould be able to issue a token: %s", failed, err)
			}

			if err := iss.Authorize(pk1.PublicKey, token); err != nil {
				t.Fatalf("\t%s\tShould authorize the owning credential: %s", failed, err)
			}
			t.Logf("\t%s\tShould authorize the owning credential.", success)

			if err := iss.Authorize(pk2.PublicKey, token); !errors.Is(err, identity.ErrNotAuthorized) {
				t.Fatalf("\t%s\tShould refuse a different credential: %v", failed, err)
			}
			t.Logf("\t%s\tShould refuse a different credential.", success)
		}
	}
}

func Test_Participation(t *testing.T) {
	t.Log("Given the need to compute turnout statistics.")
	{
		t.Log("\tWhen two of three registered credentials have voted.")
		{
			iss := newIssuer(t)

			var tokens []database.Token
			for _, district := range []string{"north", "north", "south"} {
				pk, err := crypto.GenerateKey()
				if err != nil {
					t.Fatalf("\t%s\tShould be able to generate a credential: %s", failed, err)
				}

				token, err := iss.IssueToken(pk.PublicKey, district)
				if err != nil {
					t.Fatalf("\t%s\tShould be able to issue a token: %s", failed, err)
				}
				tokens = append(tokens, token)
			}

			spent := map[database.Token]uint64{
				tokens[0]: 1,
				tokens[2]: 1,
			}

			part := iss.Participation(spent)

			if part.Registered != 3 || part.Voted != 2 {
				t.Logf("\t%s\tgot: registered %d voted %d", failed, part.Registered, part.Voted)
				t.Fatalf("\t%s\tShould count registered and voted correctly.", failed)
			}
			t.Logf("\t%s\tShould count registered and voted correctly.", success)

			if part.Districts["north"]["registered"] != 2 || part.Districts["north"]["voted"] != 1 {
				t.Fatalf("\t%s\tShould count per district correctly.", failed)
			}
			t.Logf("\t%s\tShould count per district correctly.", success)
		}
	}
}

func Test_ExportImport(t *testing.T) {
	t.Log("Given the need to persist issuance records safely.")
	{
		t.Log("\tWhen exporting and importing records.")
		{
			iss := newIssuer(t)

			pk, err := crypto.GenerateKey()
			if err != nil {
				t.Fatalf("\t%s\tShould be able to generate a credential: %s", failed, err)
			}

			token, err := iss.IssueToken(pk.PublicKey, "north")
			if err != nil {
				t.Fatalf("\t%s\tShould be able to issue a token: %s", failed, err)
			}

			key, err := crypt.GenerateKey()
			if err != nil {
				t.Fatalf("\t%s\tShould be able to generate a key: %s", failed, err)
			}

			export, err := iss.ExportRecords(key)
			if err != nil {
				t.Fatalf("\t%s\tShould be able to export records: %s", failed, err)
			}
			t.Logf("\t%s\tShould be able to export records.", success)

			fresh := newIssuer(t)
			if err := fresh.ImportRecords(key, export); err != nil {
				t.Fatalf("\t%s\tShould be able to import records: %s", failed, err)
			}
			t.Logf("\t%s\tShould be able to import records.", success)

			if _, err := fresh.IssueToken(pk.PublicKey, "north"); !errors.Is(err, identity.ErrAlreadyIssued) {
				t.Fatalf("\t%s\tShould carry the issuance over the import: %v", failed, err)
			}
			t.Logf("\t%s\tShould carry the issuance over the import.", success)

			spent := map[database.Token]uint64{token: 1}
			if part := fresh.Participation(spent); part.Voted != 1 {
				t.Fatalf("\t%s\tShould compute participation from imported records.", failed)
			}
			t.Logf("\t%s\tShould compute participation from imported records.", success)
		}
	}
}
