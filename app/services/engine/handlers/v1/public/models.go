package public

import "math/big"

// submitBallot is what a client sends to cast a vote. The signature was
// produced by the voter's wallet; the engine never sees the private key.
type submitBallot struct {
	Token     string   `json:"token" validate:"required"`
	Candidate string   `json:"candidate" validate:"required"`
	District  string   `json:"district" validate:"required"`
	TimeStamp uint64   `json:"timestamp" validate:"required"`
	V         *big.Int `json:"v" validate:"required"`
	R         *big.Int `json:"r" validate:"required"`
	S         *big.Int `json:"s" validate:"required"`
}

// ballot represents a pending or committed ballot in API responses.
type ballot struct {
	ReceiptID string `json:"receipt_id"`
	Token     string `json:"token"`
	Candidate string `json:"candidate"`
	District  string `json:"district"`
	TimeStamp uint64 `json:"timestamp"`
	Sig       string `json:"sig"`
}

// block represents a committed block in API responses.
type block struct {
	Hash          string   `json:"hash"`
	Number        uint64   `json:"number"`
	PrevBlockHash string   `json:"prev_block_hash"`
	TimeStamp     uint64   `json:"timestamp"`
	Nonce         uint64   `json:"nonce"`
	Difficulty    uint16   `json:"difficulty"`
	BallotRoot    string   `json:"ballot_root"`
	Ballots       []ballot `json:"ballots"`
}
