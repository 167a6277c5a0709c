package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountState is the confirmed state of a ledger account as reported
// by the node.
type AccountState struct {
	Balance        string `json:"balance"` // raw units, decimal string
	Frontier       string `json:"frontier"`
	Representative string `json:"representative"`
}

// ChainCursor tracks the mutable tip of one account's chain across a
// sequence of blocks built in the same logical operation. Every block
// must reference Frontier as its previous field before the cursor is
// advanced; building two siblings from the same frontier would fork
// the chain.
type ChainCursor struct {
	Frontier string
	Balance  string // raw units, decimal string
}

// Receivable is an inbound transfer not yet incorporated into the
// recipient's chain.
type Receivable struct {
	Hash   string `json:"hash"`
	Amount string `json:"amount"` // raw units
	Source string `json:"source"`
}

// StateBlock carries the fields of a state-transition block in the
// exact shape the node's process action expects.
type StateBlock struct {
	Account        string `json:"account"`
	Previous       string `json:"previous"`
	Representative string `json:"representative"`
	Balance        string `json:"balance"`
	Link           string `json:"link"`
}

// SendResult is returned by a successful send so a caller chaining
// multiple sends can feed it back as the next cachedCursor.
type SendResult struct {
	Hash       string
	NewBalance string
}

// Cursor converts a send result into the cursor for the next block.
func (r SendResult) Cursor() *ChainCursor {
	return &ChainCursor{Frontier: r.Hash, Balance: r.NewBalance}
}

// UnsignedBlock is a fully constructed but unsigned send block,
// awaiting a signature supplied by the user out-of-band.
type UnsignedBlock struct {
	Hash  string
	Block StateBlock
}

// PendingSignature associates a posted "please sign" status with the
// block it describes, so a later signature reply can complete the
// exact same block.
type PendingSignature struct {
	StatusID        string
	TipperSocialID  string
	RecipientHandle string
	Amount          decimal.Decimal // display units
	Unsigned        UnsignedBlock
	CreatedAt       time.Time
}
