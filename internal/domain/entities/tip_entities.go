package entities

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TipIntent is the typed result of interpreting one tip post.
type TipIntent struct {
	Amount           decimal.Decimal // display units
	NonCustodial     bool
	SplitEvenly      bool
	MentionIDs       []string // social account ids, in mention order
	ReplyToAccountID string   // empty when the post is not a reply
}

// IgnoreReply applies the recipient tie-break rule: mentions win over
// the reply target when the post mentions more than one identity and
// the first mention is the replied-to identity, or when there is no
// reply target at all.
func (i *TipIntent) IgnoreReply() bool {
	if i.ReplyToAccountID == "" {
		return true
	}
	return len(i.MentionIDs) > 1 && i.MentionIDs[0] == i.ReplyToAccountID
}

// Recipients resolves the recipient list for the intent.
func (i *TipIntent) Recipients() []string {
	if i.IgnoreReply() {
		return i.MentionIDs
	}
	return []string{i.ReplyToAccountID}
}

// Validate checks the intent invariants
func (i *TipIntent) Validate() error {
	if !i.Amount.IsPositive() {
		return fmt.Errorf("tip amount must be positive")
	}
	if len(i.Recipients()) == 0 {
		return fmt.Errorf("tip needs at least one recipient")
	}
	return nil
}

// DirectCommandKind enumerates the commands accepted over direct
// messages.
type DirectCommandKind string

const (
	DirectCommandBalance  DirectCommandKind = "balance"
	DirectCommandAddress  DirectCommandKind = "address"
	DirectCommandWithdraw DirectCommandKind = "withdraw"
)

// DirectCommand is a parsed direct message to the bot.
type DirectCommand struct {
	Kind    DirectCommandKind
	Amount  *decimal.Decimal // withdraw only; nil means full balance
	Address string           // withdraw only; empty means profile address
}
