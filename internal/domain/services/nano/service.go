// Package nano is the ledger state manager. It sequences every
// balance-affecting operation: sweeping receivables into an account
// before it spends, constructing/signing/submitting state blocks, and
// carrying the frontier/balance cursor across chained sends so two
// blocks are never built from the same frontier.
package nano

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xnotip/tipbot_service/internal/domain/entities"
	domainerrors "github.com/xnotip/tipbot_service/internal/domain/errors"
	"github.com/xnotip/tipbot_service/internal/domain/services/units"
	"github.com/xnotip/tipbot_service/internal/infrastructure/nanorpc"
	"github.com/xnotip/tipbot_service/pkg/nanocrypto"
)

// NodeRPC is the ledger node collaborator
type NodeRPC interface {
	AccountInfo(ctx context.Context, account string) (state *entities.AccountState, receivable string, err error)
	Receivables(ctx context.Context, account string) ([]entities.Receivable, error)
	Process(ctx context.Context, subtype string, block entities.StateBlock, signature, work string) (string, error)
}

// WorkProvider is the proof-of-work collaborator
type WorkProvider interface {
	WorkFor(ctx context.Context, hash string) (string, error)
}

// KeyProvider re-derives the private key for a custodial address
type KeyProvider interface {
	KeyForAddress(ctx context.Context, address string) (string, error)
}

// Service is the ledger state manager
type Service struct {
	rpc            NodeRPC
	work           WorkProvider
	keys           KeyProvider
	representative string
	logger         *zap.Logger
}

// NewService creates a new ledger state manager
func NewService(rpc NodeRPC, work WorkProvider, keys KeyProvider, representative string, logger *zap.Logger) *Service {
	return &Service{
		rpc:            rpc,
		work:           work,
		keys:           keys,
		representative: representative,
		logger:         logger,
	}
}

// GetAccountState returns the confirmed balance, frontier and
// representative of an account. With includeReceivable, pending inbound
// amounts are added to the returned balance for display purposes only;
// those funds are not spendable until swept. Returns ErrAccountUnopened
// when the node has no confirmed state for the account.
func (s *Service) GetAccountState(ctx context.Context, address string, includeReceivable bool) (*entities.AccountState, error) {
	state, receivable, err := s.rpc.AccountInfo(ctx, address)
	if err != nil {
		if errors.Is(err, nanorpc.ErrAccountNotFound) {
			return nil, domainerrors.ErrAccountUnopened
		}
		return nil, err
	}

	if includeReceivable && receivable != "" && receivable != "0" {
		balance, err := units.ParseRaw(state.Balance)
		if err != nil {
			return nil, err
		}
		pending, err := units.ParseRaw(receivable)
		if err != nil {
			return nil, err
		}
		state.Balance = balance.Add(pending).String()
	}

	return state, nil
}

// ListReceivables returns the pending inbound transfers for an account
// in ascending source-block-hash order.
func (s *Service) ListReceivables(ctx context.Context, address string) ([]entities.Receivable, error) {
	return s.rpc.Receivables(ctx, address)
}

// SweepReceivables incorporates every pending receivable into the
// account's chain. Only meaningful for custodial addresses, since the
// bot must hold the key.
func (s *Service) SweepReceivables(ctx context.Context, address string) error {
	privateKey, err := s.keys.KeyForAddress(ctx, address)
	if err != nil {
		return err
	}
	_, err = s.sweepWithKey(ctx, address, privateKey)
	return err
}

// sweepWithKey generates a receive block per pending receivable,
// advancing an in-memory cursor after each submission: the node's
// confirmation lags behind same-process submissions, so re-reading its
// frontier mid-sweep would chain a sibling off a stale tip. Returns the
// final cursor, or nil when nothing was pending.
func (s *Service) sweepWithKey(ctx context.Context, address, privateKey string) (*entities.ChainCursor, error) {
	receivables, err := s.rpc.Receivables(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(receivables) == 0 {
		return nil, nil
	}

	cursor := &entities.ChainCursor{Frontier: nanocrypto.ZeroHash, Balance: "0"}
	state, _, err := s.rpc.AccountInfo(ctx, address)
	if err != nil && !errors.Is(err, nanorpc.ErrAccountNotFound) {
		return nil, err
	}
	if state != nil {
		cursor = &entities.ChainCursor{Frontier: state.Frontier, Balance: state.Balance}
	}

	for _, receivable := range receivables {
		hash, newBalance, err := s.receive(ctx, address, privateKey, receivable, cursor)
		if err != nil {
			return nil, fmt.Errorf("receive %s: %w", receivable.Hash, err)
		}
		cursor = &entities.ChainCursor{Frontier: hash, Balance: newBalance}
	}

	s.logger.Info("Swept receivables",
		zap.String("address", address),
		zap.Int("count", len(receivables)),
		zap.String("frontier", cursor.Frontier))
	return cursor, nil
}

func (s *Service) receive(ctx context.Context, address, privateKey string, receivable entities.Receivable, cursor *entities.ChainCursor) (string, string, error) {
	// A first-ever block has no frontier to key work to; the account's
	// public key takes its place.
	workFor := cursor.Frontier
	if workFor == nanocrypto.ZeroHash {
		publicKey, err := nanocrypto.DerivePublicKey(privateKey)
		if err != nil {
			return "", "", err
		}
		workFor = publicKey
	}
	work, err := s.work.WorkFor(ctx, workFor)
	if err != nil {
		return "", "", err
	}

	balance, err := units.ParseRaw(cursor.Balance)
	if err != nil {
		return "", "", err
	}
	amount, err := units.ParseRaw(receivable.Amount)
	if err != nil {
		return "", "", err
	}
	newBalance := balance.Add(amount).String()

	block := entities.StateBlock{
		Account:        address,
		Previous:       cursor.Frontier,
		Representative: s.representative,
		Balance:        newBalance,
		Link:           receivable.Hash,
	}

	hash, err := nanocrypto.HashBlock(block.Account, block.Previous, block.Representative, block.Balance, block.Link)
	if err != nil {
		return "", "", err
	}
	signature, err := nanocrypto.SignHash(privateKey, hash)
	if err != nil {
		return "", "", err
	}

	submitted, err := s.rpc.Process(ctx, "receive", block, signature, work)
	if err != nil {
		return "", "", err
	}
	return submitted, newBalance, nil
}

// Send transfers amountRaw base units from a custodial account. The
// receivables of from are always swept first. cached carries the
// frontier/balance left by the previous send of the same logical
// operation; passing it avoids a stale node read between chained
// sends. The returned result feeds the next call's cached cursor.
func (s *Service) Send(ctx context.Context, from, to, amountRaw, privateKey string, cached *entities.ChainCursor) (*entities.SendResult, error) {
	cursor, err := s.sweepWithKey(ctx, from, privateKey)
	if err != nil {
		return nil, err
	}
	// A sweep that produced blocks supersedes any cached cursor: the
	// frontier moved beneath it.
	if cursor == nil {
		cursor = cached
	}
	if cursor == nil {
		state, err := s.GetAccountState(ctx, from, false)
		if err != nil {
			return nil, err
		}
		cursor = &entities.ChainCursor{Frontier: state.Frontier, Balance: state.Balance}
	}

	balance, err := units.ParseRaw(cursor.Balance)
	if err != nil {
		return nil, err
	}
	amount, err := units.ParseRaw(amountRaw)
	if err != nil {
		return nil, err
	}
	newBalance := balance.Sub(amount)
	if newBalance.IsNegative() {
		return nil, domainerrors.ErrInsufficientBalance
	}

	workFor := cursor.Frontier
	if workFor == nanocrypto.ZeroHash {
		publicKey, err := nanocrypto.DerivePublicKey(privateKey)
		if err != nil {
			return nil, err
		}
		workFor = publicKey
	}
	work, err := s.work.WorkFor(ctx, workFor)
	if err != nil {
		return nil, err
	}

	block := entities.StateBlock{
		Account:        from,
		Previous:       cursor.Frontier,
		Representative: s.representative,
		Balance:        newBalance.String(),
		Link:           to,
	}

	hash, err := nanocrypto.HashBlock(block.Account, block.Previous, block.Representative, block.Balance, block.Link)
	if err != nil {
		return nil, err
	}
	signature, err := nanocrypto.SignHash(privateKey, hash)
	if err != nil {
		return nil, err
	}

	submitted, err := s.rpc.Process(ctx, "send", block, signature, work)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Submitted send block",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("amountRaw", amountRaw),
		zap.String("hash", submitted))

	return &entities.SendResult{Hash: submitted, NewBalance: newBalance.String()}, nil
}

// BuildUnsignedSend constructs a send block for the non-custodial flow
// without signing or submitting it. The block keeps the account's own
// representative; the bot has no business moving someone's vote weight.
func (s *Service) BuildUnsignedSend(ctx context.Context, from, to, amountRaw string) (*entities.UnsignedBlock, error) {
	state, err := s.GetAccountState(ctx, from, false)
	if err != nil {
		return nil, err
	}

	balance, err := units.ParseRaw(state.Balance)
	if err != nil {
		return nil, err
	}
	amount, err := units.ParseRaw(amountRaw)
	if err != nil {
		return nil, err
	}
	newBalance := balance.Sub(amount)
	if newBalance.IsNegative() {
		return nil, domainerrors.ErrInsufficientBalance
	}

	representative := state.Representative
	if representative == "" {
		representative = s.representative
	}

	block := entities.StateBlock{
		Account:        from,
		Previous:       state.Frontier,
		Representative: representative,
		Balance:        newBalance.String(),
		Link:           to,
	}
	hash, err := nanocrypto.HashBlock(block.Account, block.Previous, block.Representative, block.Balance, block.Link)
	if err != nil {
		return nil, err
	}

	return &entities.UnsignedBlock{Hash: hash, Block: block}, nil
}

// SubmitSigned completes a previously built block once the external
// signature arrives. The signature is verified locally against the
// block hash before anything reaches the node.
func (s *Service) SubmitSigned(ctx context.Context, block entities.StateBlock, signature string) (string, error) {
	hash, err := nanocrypto.HashBlock(block.Account, block.Previous, block.Representative, block.Balance, block.Link)
	if err != nil {
		return "", err
	}
	publicKey, err := nanocrypto.DecodeAddress(block.Account)
	if err != nil {
		return "", err
	}
	if !nanocrypto.VerifyHash(publicKey, hash, signature) {
		return "", domainerrors.LedgerRejectedError("signature does not verify against block")
	}

	workFor := block.Previous
	if workFor == nanocrypto.ZeroHash {
		workFor = publicKey
	}
	work, err := s.work.WorkFor(ctx, workFor)
	if err != nil {
		return "", err
	}

	return s.rpc.Process(ctx, "send", block, signature, work)
}

// SpendableBalance computes the balance a send could draw on once
// receivables are swept: confirmed balance plus everything pending.
func (s *Service) SpendableBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	state, err := s.GetAccountState(ctx, address, false)
	if err != nil && !errors.Is(err, domainerrors.ErrAccountUnopened) {
		return decimal.Zero, err
	}

	total := decimal.Zero
	if state != nil {
		confirmed, err := units.ParseRaw(state.Balance)
		if err != nil {
			return decimal.Zero, err
		}
		total = confirmed
	}

	receivables, err := s.rpc.Receivables(ctx, address)
	if err != nil {
		return decimal.Zero, err
	}
	for _, r := range receivables {
		amount, err := units.ParseRaw(r.Amount)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(amount)
	}

	if state == nil && len(receivables) == 0 {
		return decimal.Zero, domainerrors.ErrAccountUnopened
	}
	return total, nil
}
