package state_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/votelabs/voteledger/foundation/ledger/crypt"
	"github.com/votelabs/voteledger/foundation/ledger/database"
	"github.com/votelabs/voteledger/foundation/ledger/election"
	"github.com/votelabs/voteledger/foundation/ledger/identity"
	"github.com/votelabs/voteledger/foundation/ledger/state"
	"github.com/votelabs/voteledger/foundation/ledger/storage/memory"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func testElection() election.Election {
	return election.Election{
		ElectionID:      "test-election",
		Candidates:      []string{"alice", "bob"},
		Districts:       []string{"north", "south"},
		BallotsPerBlock: 10,
		Difficulty:      2,
		TimestampSkew:   300,
	}
}

// testEngine bundles everything a scenario needs to submit and mine ballots.
type testEngine struct {
	state  *state.State
	issuer *identity.Issuer
	strg   *memory.Memory
}

func newTestEngine(t *testing.T) *testEngine {
	strg, err := memory.New()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct storage: %s", failed, err)
	}

	iss, err := identity.New("test-election", bytes.Repeat([]byte{0x01}, crypt.KeySize))
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct an issuer: %s", failed, err)
	}

	st, err := state.New(state.Config{
		Election:   testElection(),
		Storage:    strg,
		Authorizer: iss,
		EvHandler:  func(v string, args ...any) {},
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct state: %s", failed, err)
	}

	return &testEngine{state: st, issuer: iss, strg: strg}
}

// castBallot registers a fresh credential, signs a ballot with it, and
// returns the signed ballot along with the credential for reuse.
func (te *testEngine) castBallot(t *testing.T, candidate string, district string) (database.SignedBallot, *ecdsa.PrivateKey) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a credential: %s", failed, err)
	}

	token, err := te.issuer.IssueToken(pk.PublicKey, district)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to issue a token: %s", failed, err)
	}

	ballot, err := database.NewBallot(token, candidate, district)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a ballot: %s", failed, err)
	}

	signedBallot, err := ballot.Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign a ballot: %s", failed, err)
	}

	return signedBallot, pk
}

// =============================================================================

func Test_SubmitMineTally(t *testing.T) {
	t.Log("Given the need to run an election end to end.")
	{
		t.Log("\tWhen three voters cast ballots and a block is mined.")
		{
			te := newTestEngine(t)

			sb1, _ := te.castBallot(t, "alice", "north")
			sb2, _ := te.castBallot(t, "bob", "south")
			sb3, _ := te.castBallot(t, "alice", "north")

			for _, sb := range []database.SignedBallot{sb1, sb2, sb3} {
				tx, err := te.state.SubmitBallot(sb)
				if err != nil {
					t.Fatalf("\t%s\tShould be able to submit a ballot: %s", failed, err)
				}
				if tx.ReceiptID == "" {
					t.Fatalf("\t%s\tShould get back a receipt id.", failed)
				}
			}
			t.Logf("\t%s\tShould be able to submit three ballots.", success)

			if te.state.MempoolLength() != 3 {
				t.Fatalf("\t%s\tShould have three pending ballots.", failed)
			}
			t.Logf("\t%s\tShould have three pending ballots.", success)

			block, err := te.state.MineNewBlock(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tShould be able to mine a block: %s", failed, err)
			}
			t.Logf("\t%s\tShould be able to mine a block.", success)

			if len(block.Ballots) != 3 {
				t.Fatalf("\t%s\tShould seal all three ballots, got %d.", failed, len(block.Ballots))
			}
			t.Logf("\t%s\tShould seal all three ballots.", success)

			if te.state.MempoolLength() != 0 {
				t.Fatalf("\t%s\tShould drain the pool after mining.", failed)
			}
			t.Logf("\t%s\tShould drain the pool after mining.", success)

			if err := te.state.VerifyChain(); err != nil {
				t.Fatalf("\t%s\tShould pass a full chain audit: %s", failed, err)
			}
			t.Logf("\t%s\tShould pass a full chain audit.", success)

			tally, err := te.state.TallyAudited()
			if err != nil {
				t.Fatalf("\t%s\tShould be able to produce an audited tally: %s", failed, err)
			}

			if tally.Candidates["alice"] != 2 || tally.Candidates["bob"] != 1 {
				t.Logf("\t%s\tgot: alice %d bob %d", failed, tally.Candidates["alice"], tally.Candidates["bob"])
				t.Fatalf("\t%s\tShould tally two votes for alice and one for bob.", failed)
			}
			t.Logf("\t%s\tShould tally two votes for alice and one for bob.", success)
		}
	}
}

func Test_DoubleVote(t *testing.T) {
	t.Log("Given the need to enforce one vote per token.")
	{
		t.Log("\tWhen a voter submits twice with the same token.")
		{
			te := newTestEngine(t)

			sb1, pk := te.castBallot(t, "alice", "north")

			if _, err := te.state.SubmitBallot(sb1); err != nil {
				t.Fatalf("\t%s\tShould be able to submit a ballot: %s", failed, err)
			}
			t.Logf("\t%s\tShould be able to submit a ballot.", success)

			// A second ballot with the same token, even for the same
			// candidate, must be rejected while the first is pending.
			ballot, err := database.NewBallot(sb1.Token, "bob", "north")
			if err != nil {
				t.Fatalf("\t%s\tShould be able to construct a ballot: %s", failed, err)
			}
			sb2, err := ballot.Sign(pk)
			if err != nil {
				t.Fatalf("\t%s\tShould be able to sign a ballot: %s", failed, err)
			}

			if _, err := te.state.SubmitBallot(sb2); !errors.Is(err, database.ErrDoubleVote) {
				t.Fatalf("\t%s\tShould reject a duplicate pending token: %v", failed, err)
			}
			t.Logf("\t%s\tShould reject a duplicate pending token.", success)

			if _, err := te.state.MineNewBlock(context.Background()); err != nil {
				t.Fatalf("\t%s\tShould be able to mine a block: %s", failed, err)
			}

			if _, err := te.state.SubmitBallot(sb2); !errors.Is(err, database.ErrDoubleVote) {
				t.Fatalf("\t%s\tShould reject a committed token: %v", failed, err)
			}
			t.Logf("\t%s\tShould reject a committed token.", success)

			tally, err := te.state.Tally()
			if err != nil {
				t.Fatalf("\t%s\tShould be able to tally: %s", failed, err)
			}
			if tally.Ballots != 1 {
				t.Fatalf("\t%s\tShould count exactly one ballot, got %d.", failed, tally.Ballots)
			}
			t.Logf("\t%s\tShould count exactly one ballot.", success)
		}
	}
}

func Test_DoubleVoteManyTokens(t *testing.T) {
	t.Log("Given the need to accept exactly one ballot per token.")
	{
		t.Log("\tWhen ten submissions arrive from four distinct tokens.")
		{
			te := newTestEngine(t)

			type voter struct {
				token database.Token
				pk    *ecdsa.PrivateKey
			}

			voters := make([]voter, 4)
			for i := range voters {
				sb, pk := te.castBallot(t, "alice", "north")
				voters[i] = voter{token: sb.Token, pk: pk}
			}

			// Each entry names the voter making the submission. Every voter
			// appears more than once; every duplicate is freshly signed by
			// the owning credential, so only the token check can reject it.
			submissions := []int{0, 1, 0, 2, 1, 3, 2, 0, 3, 1}

			var accepted int
			var rejected int
			for _, idx := range submissions {
				v := voters[idx]

				ballot, err := database.NewBallot(v.token, "bob", "north")
				if err != nil {
					t.Fatalf("\t%s\tShould be able to construct a ballot: %s", failed, err)
				}
				sb, err := ballot.Sign(v.pk)
				if err != nil {
					t.Fatalf("\t%s\tShould be able to sign a ballot: %s", failed, err)
				}

				switch _, err := te.state.SubmitBallot(sb); {
				case err == nil:
					accepted++
				case errors.Is(err, database.ErrDoubleVote):
					rejected++
				default:
					t.Fatalf("\t%s\tShould only reject duplicates as double votes: %v", failed, err)
				}
			}

			if accepted != len(voters) {
				t.Fatalf("\t%s\tShould accept one ballot per token, got %d.", failed, accepted)
			}
			t.Logf("\t%s\tShould accept one ballot per token.", success)

			if rejected != len(submissions)-len(voters) {
				t.Fatalf("\t%s\tShould reject every duplicate, got %d.", failed, rejected)
			}
			t.Logf("\t%s\tShould reject every duplicate.", success)

			if _, err := te.state.MineNewBlock(context.Background()); err != nil {
				t.Fatalf("\t%s\tShould be able to mine a block: %s", failed, err)
			}

			tally, err := te.state.TallyAudited()
			if err != nil {
				t.Fatalf("\t%s\tShould be able to produce an audited tally: %s", failed, err)
			}
			if tally.Ballots != len(voters) {
				t.Fatalf("\t%s\tShould count one committed ballot per token, got %d.", failed, tally.Ballots)
			}
			t.Logf("\t%s\tShould count one committed ballot per token.", success)
		}
	}
}

func Test_SubmitRejections(t *testing.T) {
	t.Log("Given the need to reject invalid submissions.")
	{
		t.Log("\tWhen ballots fail validation or authorization.")
		{
			te := newTestEngine(t)

			if _, err := te.state.MineNewBlock(context.Background()); !errors.Is(err, state.ErrEmptyPool) {
				t.Fatalf("\t%s\tShould refuse to mine an empty block: %v", failed, err)
			}
			t.Logf("\t%s\tShould refuse to mine an empty block.", success)

			sb, _ := te.castBallot(t, "alice", "north")

			tampered := sb
			tampered.Candidate = "bob"
			if _, err := te.state.SubmitBallot(tampered); err == nil {
				t.Fatalf("\t%s\tShould reject a ballot altered after signing.", failed)
			}
			t.Logf("\t%s\tShould reject a ballot altered after signing.", success)

			// A ballot signed by a credential that doesn't own the token.
			thief, err := crypto.GenerateKey()
			if err != nil {
				t.Fatalf("\t%s\tShould be able to generate a credential: %s", failed, err)
			}
			stolen, err := database.NewBallot(sb.Token, "alice", "north")
			if err != nil {
				t.Fatalf("\t%s\tShould be able to construct a ballot: %s", failed, err)
			}
			signedStolen, err := stolen.Sign(thief)
			if err != nil {
				t.Fatalf("\t%s\tShould be able to sign a ballot: %s", failed, err)
			}

			if _, err := te.state.SubmitBallot(signedStolen); !errors.Is(err, identity.ErrNotAuthorized) {
				t.Fatalf("\t%s\tShould reject a token spent by the wrong credential: %v", failed, err)
			}
			t.Logf("\t%s\tShould reject a token spent by the wrong credential.", success)
		}
	}
}

func Test_TamperDetection(t *testing.T) {
	t.Log("Given the need to detect tampering with committed blocks.")
	{
		t.Log("\tWhen a committed ballot is altered in storage.")
		{
			te := newTestEngine(t)

			sb, _ := te.castBallot(t, "alice", "north")
			if _, err := te.state.SubmitBallot(sb); err != nil {
				t.Fatalf("\t%s\tShould be able to submit a ballot: %s", failed, err)
			}

			if _, err := te.state.MineNewBlock(context.Background()); err != nil {
				t.Fatalf("\t%s\tShould be able to mine a block: %s", failed, err)
			}

			if err := te.state.VerifyChain(); err != nil {
				t.Fatalf("\t%s\tShould pass the audit before tampering: %s", failed, err)
			}
			t.Logf("\t%s\tShould pass the audit before tampering.", success)

			// Flip the vote inside the stored copy of block 1.
			blockData, err := te.strg.GetBlock(1)
			if err != nil {
				t.Fatalf("\t%s\tShould be able to read the stored block: %s", failed, err)
			}
			blockData.Ballots[0].Candidate = "bob"
			if err := te.strg.Corrupt(1, blockData); err != nil {
				t.Fatalf("\t%s\tShould be able to overwrite the stored block: %s", failed, err)
			}

			err = te.state.VerifyChain()
			var cerr *state.ChainCorruptedError
			if !errors.As(err, &cerr) {
				t.Fatalf("\t%s\tShould report corruption from the audit: %v", failed, err)
			}
			if cerr.Index != 1 {
				t.Fatalf("\t%s\tShould report block 1 as corrupted, got %d.", failed, cerr.Index)
			}
			t.Logf("\t%s\tShould report block 1 as corrupted.", success)

			if _, err := te.state.Tally(); !errors.Is(err, state.ErrChainHalted) {
				t.Fatalf("\t%s\tShould refuse to tally a halted chain: %v", failed, err)
			}
			t.Logf("\t%s\tShould refuse to tally a halted chain.", success)

			if _, err := te.state.MineNewBlock(context.Background()); !errors.Is(err, state.ErrChainHalted) {
				t.Fatalf("\t%s\tShould refuse to mine on a halted chain: %v", failed, err)
			}
			t.Logf("\t%s\tShould refuse to mine on a halted chain.", success)

			if err := te.state.Truncate(); err != nil {
				t.Fatalf("\t%s\tShould be able to truncate the chain: %s", failed, err)
			}

			tally, err := te.state.Tally()
			if err != nil {
				t.Fatalf("\t%s\tShould be able to tally after remediation: %s", failed, err)
			}
			if tally.Ballots != 0 {
				t.Fatalf("\t%s\tShould start over with zero ballots.", failed)
			}
			t.Logf("\t%s\tShould be able to tally after remediation.", success)
		}
	}
}

func Test_TallyAuditedCorruption(t *testing.T) {
	t.Log("Given the need for the audited tally to describe the chain it audited.")
	{
		t.Log("\tWhen a committed ballot is altered in storage.")
		{
			te := newTestEngine(t)

			sb, _ := te.castBallot(t, "alice", "north")
			if _, err := te.state.SubmitBallot(sb); err != nil {
				t.Fatalf("\t%s\tShould be able to submit a ballot: %s", failed, err)
			}

			if _, err := te.state.MineNewBlock(context.Background()); err != nil {
				t.Fatalf("\t%s\tShould be able to mine a block: %s", failed, err)
			}

			tally, err := te.state.TallyAudited()
			if err != nil {
				t.Fatalf("\t%s\tShould be able to produce an audited tally: %s", failed, err)
			}
			if tally.Ballots != 1 {
				t.Fatalf("\t%s\tShould count the committed ballot, got %d.", failed, tally.Ballots)
			}
			t.Logf("\t%s\tShould count the committed ballot.", success)

			blockData, err := te.strg.GetBlock(1)
			if err != nil {
				t.Fatalf("\t%s\tShould be able to read the stored block: %s", failed, err)
			}
			blockData.Ballots[0].Candidate = "bob"
			if err := te.strg.Corrupt(1, blockData); err != nil {
				t.Fatalf("\t%s\tShould be able to overwrite the stored block: %s", failed, err)
			}

			// The audited path runs the audit and the count together, so
			// corruption must surface here without a separate VerifyChain.
			_, err = te.state.TallyAudited()
			var cerr *state.ChainCorruptedError
			if !errors.As(err, &cerr) {
				t.Fatalf("\t%s\tShould report corruption from the audited tally: %v", failed, err)
			}
			if cerr.Index != 1 {
				t.Fatalf("\t%s\tShould report block 1 as corrupted, got %d.", failed, cerr.Index)
			}
			t.Logf("\t%s\tShould report corruption from the audited tally.", success)

			if _, err := te.state.Tally(); !errors.Is(err, state.ErrChainHalted) {
				t.Fatalf("\t%s\tShould halt the chain after the failed audit: %v", failed, err)
			}
			t.Logf("\t%s\tShould halt the chain after the failed audit.", success)
		}
	}
}

func Test_ChainGrowth(t *testing.T) {
	t.Log("Given the need to grow the chain block by block.")
	{
		t.Log("\tWhen mining two consecutive blocks.")
		{
			te := newTestEngine(t)

			sb1, _ := te.castBallot(t, "alice", "north")
			if _, err := te.state.SubmitBallot(sb1); err != nil {
				t.Fatalf("\t%s\tShould be able to submit a ballot: %s", failed, err)
			}

			block1, err := te.state.MineNewBlock(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tShould be able to mine block 1: %s", failed, err)
			}

			sb2, _ := te.castBallot(t, "bob", "south")
			if _, err := te.state.SubmitBallot(sb2); err != nil {
				t.Fatalf("\t%s\tShould be able to submit a ballot: %s", failed, err)
			}

			block2, err := te.state.MineNewBlock(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tShould be able to mine block 2: %s", failed, err)
			}

			if block2.Header.Number != block1.Header.Number+1 {
				t.Fatalf("\t%s\tShould number blocks consecutively.", failed)
			}
			t.Logf("\t%s\tShould number blocks consecutively.", success)

			if block2.Header.PrevBlockHash != block1.Hash() {
				t.Fatalf("\t%s\tShould link each block to its parent.", failed)
			}
			t.Logf("\t%s\tShould link each block to its parent.", success)

			blocks, err := te.state.RetrieveBlocks(1)
			if err != nil {
				t.Fatalf("\t%s\tShould be able to retrieve the chain: %s", failed, err)
			}
			if len(blocks) != 2 {
				t.Fatalf("\t%s\tShould retrieve both blocks, got %d.", failed, len(blocks))
			}
			t.Logf("\t%s\tShould retrieve both blocks.", success)

			if err := te.state.VerifyChain(); err != nil {
				t.Fatalf("\t%s\tShould pass a full chain audit: %s", failed, err)
			}
			t.Logf("\t%s\tShould pass a full chain audit.", success)
		}
	}
}
