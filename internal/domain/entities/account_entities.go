package entities

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account maps one fediverse identity to its custodial ledger account.
// The private key is never stored; it is re-derived from the master
// seed and LedgerIndex whenever a block must be signed.
type Account struct {
	ID            uuid.UUID `db:"id" json:"id"`
	SocialID      string    `db:"social_id" json:"social_id"`
	LedgerIndex   uint32    `db:"ledger_index" json:"ledger_index"`
	LedgerAddress string    `db:"ledger_address" json:"ledger_address"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Validate checks the account invariants before persistence
func (a *Account) Validate() error {
	if strings.TrimSpace(a.SocialID) == "" {
		return fmt.Errorf("social id is required")
	}
	if strings.TrimSpace(a.LedgerAddress) == "" {
		return fmt.Errorf("ledger address is required")
	}
	return nil
}
