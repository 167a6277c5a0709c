// Package tipping orchestrates the full life of a tip: interpreting the
// post, resolving both sides to ledger accounts, moving funds and
// posting the outcome back to the thread. It also owns the
// non-custodial signature round-trip and the direct-message commands.
package tipping

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xnotip/tipbot_service/internal/domain/entities"
	domainerrors "github.com/xnotip/tipbot_service/internal/domain/errors"
	"github.com/xnotip/tipbot_service/internal/domain/services/parser"
	"github.com/xnotip/tipbot_service/internal/domain/services/units"
	"github.com/xnotip/tipbot_service/pkg/metrics"
	"github.com/xnotip/tipbot_service/pkg/nanocrypto"
)

// SocialClient is the subset of the fediverse API the orchestrator uses
type SocialClient interface {
	PostStatus(ctx context.Context, body, inReplyToID, visibility string) (*entities.Status, error)
	GetAccount(ctx context.Context, id string) (*entities.SocialAccount, error)
	Favourite(ctx context.Context, id string) error
}

// AccountProvider maps social identities to custodial ledger accounts
type AccountProvider interface {
	Provision(ctx context.Context, socialID string) (*entities.Account, error)
	Resolve(ctx context.Context, socialID string) (*entities.Account, error)
	KeyForAddress(ctx context.Context, address string) (string, error)
}

// Ledger is the ledger state manager collaborator
type Ledger interface {
	Send(ctx context.Context, from, to, amountRaw, privateKey string, cached *entities.ChainCursor) (*entities.SendResult, error)
	BuildUnsignedSend(ctx context.Context, from, to, amountRaw string) (*entities.UnsignedBlock, error)
	SubmitSigned(ctx context.Context, block entities.StateBlock, signature string) (string, error)
	SpendableBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

// PendingSignatureStore persists unsigned blocks between the
// "please sign" post and the user's signature reply.
type PendingSignatureStore interface {
	Put(ctx context.Context, pending *entities.PendingSignature) error
	Get(ctx context.Context, statusID string) (*entities.PendingSignature, error)
	Delete(ctx context.Context, statusID string) error
}

// Service orchestrates tip commands end to end
type Service struct {
	social   SocialClient
	accounts AccountProvider
	ledger   Ledger
	pending  PendingSignatureStore
	silent   bool
	logger   *zap.Logger
}

// NewService creates a new tipping orchestrator
func NewService(social SocialClient, accounts AccountProvider, ledger Ledger, pending PendingSignatureStore, silent bool, logger *zap.Logger) *Service {
	return &Service{
		social:   social,
		accounts: accounts,
		ledger:   ledger,
		pending:  pending,
		silent:   silent,
		logger:   logger,
	}
}

// recipient pairs a resolved ledger address with the handle used in
// outcome copy. Created marks recipients whose custodial account was
// provisioned while resolving this tip.
type recipient struct {
	SocialID string
	Handle   string
	Address  string
	Created  bool
}

// HandleTipStatus processes one trigger-tagged status from the public
// stream. All outcomes, good or bad, are reported back to the thread;
// errors returned here mean the outcome itself could not be delivered.
func (s *Service) HandleTipStatus(ctx context.Context, status *entities.Status) error {
	intent, err := parser.ParseTipStatus(status)
	if err != nil {
		return s.replyFailure(ctx, status, err)
	}

	if intent.NonCustodial {
		return s.handleNonCustodialTip(ctx, status, intent)
	}
	return s.handleCustodialTip(ctx, status, intent)
}

func (s *Service) handleCustodialTip(ctx context.Context, status *entities.Status, intent *entities.TipIntent) error {
	tipperCreated := false
	if _, err := s.accounts.Resolve(ctx, status.Account.ID); errors.Is(err, domainerrors.ErrNotFound) {
		tipperCreated = true
	}
	tipper, err := s.accounts.Provision(ctx, status.Account.ID)
	if err != nil {
		return fmt.Errorf("provision tipper: %w", err)
	}

	recipients, err := s.resolveRecipients(ctx, intent.Recipients())
	if err != nil {
		return s.replyFailure(ctx, status, err)
	}

	perRecipientRaw, totalRaw, err := splitAmounts(intent, len(recipients))
	if err != nil {
		return s.replyFailure(ctx, status, err)
	}

	spendable, err := s.ledger.SpendableBalance(ctx, tipper.LedgerAddress)
	if err != nil {
		if errors.Is(err, domainerrors.ErrAccountUnopened) {
			metrics.TipOutcomesTotal.WithLabelValues("account_unopened").Inc()
			// A first-time tipper is told their account was created as
			// well as that it needs funding.
			if tipperCreated {
				return s.replyOrAck(ctx, status, createdTipperMessage(&status.Account, tipper.LedgerAddress))
			}
			return s.replyOrAck(ctx, status, unopenedMessage(&status.Account, tipper.LedgerAddress))
		}
		return fmt.Errorf("read balance: %w", err)
	}
	if spendable.LessThan(totalRaw) {
		metrics.TipOutcomesTotal.WithLabelValues("insufficient_balance").Inc()
		available, convErr := units.ToDisplay(spendable.String())
		if convErr != nil {
			return convErr
		}
		return s.replyOrAck(ctx, status, insufficientMessage(&status.Account, available))
	}

	privateKey, err := s.accounts.KeyForAddress(ctx, tipper.LedgerAddress)
	if err != nil {
		return fmt.Errorf("key for tipper: %w", err)
	}

	var cursor *entities.ChainCursor
	sent := make([]sentTip, 0, len(recipients))
	for _, r := range recipients {
		result, err := s.ledger.Send(ctx, tipper.LedgerAddress, r.Address, perRecipientRaw.String(), privateKey, cursor)
		if err != nil {
			// Partial delivery: report what went through before failing
			// the rest, then surface the error for this recipient.
			s.logger.Error("Send failed mid-tip",
				zap.String("statusID", status.ID),
				zap.String("recipient", r.Handle),
				zap.Int("delivered", len(sent)),
				zap.Error(err))
			metrics.TipOutcomesTotal.WithLabelValues("send_failed").Inc()
			if len(sent) > 0 {
				if replyErr := s.reply(ctx, status, partialMessage(&status.Account, sent, r.Handle)); replyErr != nil {
					return replyErr
				}
				return nil
			}
			return s.replyFailure(ctx, status, err)
		}
		cursor = result.Cursor()
		sent = append(sent, sentTip{Handle: r.Handle, Hash: result.Hash, Created: r.Created})
	}

	metrics.TipOutcomesTotal.WithLabelValues("sent").Inc()
	s.logger.Info("Tip delivered",
		zap.String("statusID", status.ID),
		zap.String("tipper", status.Account.Acct),
		zap.Int("recipients", len(sent)),
		zap.String("amount", intent.Amount.String()))

	if s.silent {
		return s.social.Favourite(ctx, status.ID)
	}
	perDisplay, err := units.ToDisplay(perRecipientRaw.String())
	if err != nil {
		return err
	}
	return s.reply(ctx, status, successMessage(&status.Account, sent, perDisplay))
}

func (s *Service) handleNonCustodialTip(ctx context.Context, status *entities.Status, intent *entities.TipIntent) error {
	tipperAddress, ok := ProfileAddress(&status.Account)
	if !ok {
		metrics.TipOutcomesTotal.WithLabelValues("no_profile_address").Inc()
		return s.replyOrAck(ctx, status, noProfileAddressMessage(&status.Account))
	}

	recipients, err := s.resolveRecipients(ctx, intent.Recipients())
	if err != nil {
		return s.replyFailure(ctx, status, err)
	}
	target := recipients[0]

	amountRaw, err := units.ToRaw(intent.Amount)
	if err != nil {
		return s.replyFailure(ctx, status, err)
	}

	unsigned, err := s.ledger.BuildUnsignedSend(ctx, tipperAddress, target.Address, amountRaw)
	if err != nil {
		return s.replyFailure(ctx, status, err)
	}

	posted, err := s.replyStatus(ctx, status, pleaseSignMessage(&status.Account, target.Handle, intent.Amount, unsigned))
	if err != nil {
		return err
	}

	err = s.pending.Put(ctx, &entities.PendingSignature{
		StatusID:        posted.ID,
		TipperSocialID:  status.Account.ID,
		RecipientHandle: target.Handle,
		Amount:          intent.Amount,
		Unsigned:        *unsigned,
	})
	if err != nil {
		return fmt.Errorf("store pending signature: %w", err)
	}

	metrics.TipOutcomesTotal.WithLabelValues("awaiting_signature").Inc()
	s.logger.Info("Posted unsigned block",
		zap.String("statusID", status.ID),
		zap.String("pleaseSignStatusID", posted.ID),
		zap.String("blockHash", unsigned.Hash))
	return nil
}

// HandleReply checks whether a reply completes a pending non-custodial
// tip and, if so, submits the signed block. Replies to anything other
// than a "please sign" post are ignored.
func (s *Service) HandleReply(ctx context.Context, status *entities.Status) error {
	if status.InReplyToID == "" {
		return nil
	}
	pending, err := s.pending.Get(ctx, status.InReplyToID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return nil
		}
		return err
	}
	// Only the tipper can complete their own block.
	if status.Account.ID != pending.TipperSocialID {
		return nil
	}

	signature, err := parser.ParseSignatureReply(status)
	if err != nil {
		metrics.TipOutcomesTotal.WithLabelValues("signature_invalid").Inc()
		return s.reply(ctx, status, signatureNotFoundMessage(&status.Account))
	}

	hash, err := s.ledger.SubmitSigned(ctx, pending.Unsigned.Block, signature)
	if err != nil {
		if errors.Is(err, domainerrors.ErrLedgerRejected) {
			metrics.TipOutcomesTotal.WithLabelValues("signature_invalid").Inc()
			return s.reply(ctx, status, signatureRejectedMessage(&status.Account))
		}
		return fmt.Errorf("submit signed block: %w", err)
	}

	if err := s.pending.Delete(ctx, pending.StatusID); err != nil {
		s.logger.Warn("Failed to clear pending signature", zap.String("statusID", pending.StatusID), zap.Error(err))
	}

	metrics.TipOutcomesTotal.WithLabelValues("signature_completed").Inc()
	s.logger.Info("Completed non-custodial tip",
		zap.String("blockHash", hash),
		zap.String("recipient", pending.RecipientHandle))
	return s.reply(ctx, status, signedSuccessMessage(&status.Account, pending.RecipientHandle, pending.Amount, hash))
}

// HandleDirectMessage serves the balance, address and withdraw commands
// sent to the bot with direct visibility.
func (s *Service) HandleDirectMessage(ctx context.Context, status *entities.Status) error {
	cmd, err := parser.ParseDirectCommand(status)
	if err != nil {
		return s.replyDirect(ctx, status, helpMessage(&status.Account))
	}

	account, err := s.accounts.Provision(ctx, status.Account.ID)
	if err != nil {
		return fmt.Errorf("provision account: %w", err)
	}

	switch cmd.Kind {
	case entities.DirectCommandBalance:
		return s.handleBalance(ctx, status, account)
	case entities.DirectCommandAddress:
		return s.replyDirect(ctx, status, addressMessage(&status.Account, account.LedgerAddress))
	case entities.DirectCommandWithdraw:
		return s.handleWithdraw(ctx, status, account, cmd)
	default:
		return s.replyDirect(ctx, status, helpMessage(&status.Account))
	}
}

func (s *Service) handleBalance(ctx context.Context, status *entities.Status, account *entities.Account) error {
	spendable, err := s.ledger.SpendableBalance(ctx, account.LedgerAddress)
	if err != nil {
		if errors.Is(err, domainerrors.ErrAccountUnopened) {
			return s.replyDirect(ctx, status, unopenedMessage(&status.Account, account.LedgerAddress))
		}
		return err
	}
	display, err := units.ToDisplay(spendable.String())
	if err != nil {
		return err
	}
	return s.replyDirect(ctx, status, balanceMessage(&status.Account, display, account.LedgerAddress))
}

func (s *Service) handleWithdraw(ctx context.Context, status *entities.Status, account *entities.Account, cmd *entities.DirectCommand) error {
	destination := cmd.Address
	if destination == "" {
		profileAddress, ok := ProfileAddress(&status.Account)
		if !ok {
			return s.replyDirect(ctx, status, noProfileAddressMessage(&status.Account))
		}
		destination = profileAddress
	}
	if !nanocrypto.CheckAddress(destination) {
		return s.replyDirect(ctx, status, badAddressMessage(&status.Account, destination))
	}

	spendable, err := s.ledger.SpendableBalance(ctx, account.LedgerAddress)
	if err != nil {
		if errors.Is(err, domainerrors.ErrAccountUnopened) {
			return s.replyDirect(ctx, status, unopenedMessage(&status.Account, account.LedgerAddress))
		}
		return err
	}

	amountRaw := spendable
	if cmd.Amount != nil {
		converted, convErr := units.ToRaw(*cmd.Amount)
		if convErr != nil {
			return s.replyDirect(ctx, status, badAmountMessage(&status.Account))
		}
		amountRaw, err = units.ParseRaw(converted)
		if err != nil {
			return err
		}
	}
	if !amountRaw.IsPositive() {
		return s.replyDirect(ctx, status, badAmountMessage(&status.Account))
	}
	if spendable.LessThan(amountRaw) {
		display, convErr := units.ToDisplay(spendable.String())
		if convErr != nil {
			return convErr
		}
		return s.replyDirect(ctx, status, insufficientMessage(&status.Account, display))
	}

	privateKey, err := s.accounts.KeyForAddress(ctx, account.LedgerAddress)
	if err != nil {
		return err
	}
	result, err := s.ledger.Send(ctx, account.LedgerAddress, destination, amountRaw.String(), privateKey, nil)
	if err != nil {
		return s.replyDirect(ctx, status, withdrawFailedMessage(&status.Account))
	}

	metrics.TipOutcomesTotal.WithLabelValues("withdrawn").Inc()
	display, err := units.ToDisplay(amountRaw.String())
	if err != nil {
		return err
	}
	return s.replyDirect(ctx, status, withdrawnMessage(&status.Account, display, destination, result.Hash))
}

func (s *Service) resolveRecipients(ctx context.Context, socialIDs []string) ([]recipient, error) {
	recipients := make([]recipient, 0, len(socialIDs))
	for _, id := range socialIDs {
		social, err := s.social.GetAccount(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lookup recipient %s: %w", id, err)
		}
		address, ok := ProfileAddress(social)
		created := false
		if !ok {
			if _, err := s.accounts.Resolve(ctx, social.ID); errors.Is(err, domainerrors.ErrNotFound) {
				created = true
			}
			account, err := s.accounts.Provision(ctx, social.ID)
			if err != nil {
				return nil, fmt.Errorf("provision recipient %s: %w", social.Acct, err)
			}
			address = account.LedgerAddress
		}
		recipients = append(recipients, recipient{SocialID: social.ID, Handle: social.Handle(), Address: address, Created: created})
	}
	return recipients, nil
}

// splitAmounts converts the intent amount into per-recipient and total
// raw units. Split amounts are rounded to the nearest whole raw unit;
// the balance check runs against the rounded total.
func splitAmounts(intent *entities.TipIntent, count int) (per, total decimal.Decimal, err error) {
	amountRaw, err := units.ToRaw(intent.Amount)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	amount, err := units.ParseRaw(amountRaw)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	if intent.SplitEvenly && count > 1 {
		per = amount.Div(decimal.NewFromInt(int64(count))).Round(0)
	} else {
		per = amount
	}
	if !per.IsPositive() {
		return decimal.Zero, decimal.Zero, domainerrors.MalformedCommandError("amount too small to split")
	}
	total = per.Mul(decimal.NewFromInt(int64(count)))
	return per, total, nil
}

// ProfileAddress scans an account's profile metadata for a ledger
// address under an XNO, NANO or Ӿ field.
func ProfileAddress(account *entities.SocialAccount) (string, bool) {
	for _, field := range account.Fields {
		name := strings.TrimSpace(field.Name)
		if !strings.EqualFold(name, "xno") && !strings.EqualFold(name, "nano") && name != "Ӿ" {
			continue
		}
		for _, token := range strings.Fields(parser.StripHTML(field.Value)) {
			candidate := nanocrypto.StripURIScheme(token)
			if nanocrypto.CheckAddress(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

func (s *Service) replyFailure(ctx context.Context, status *entities.Status, err error) error {
	var body string
	switch {
	case errors.Is(err, domainerrors.ErrUnsupportedMultiRecipientNonCustodial):
		metrics.TipOutcomesTotal.WithLabelValues("unsupported").Inc()
		body = multiRecipientNonCustodialMessage(&status.Account)
	case errors.Is(err, domainerrors.ErrMalformedCommand):
		metrics.TipOutcomesTotal.WithLabelValues("malformed").Inc()
		s.logger.Debug("Malformed tip", zap.String("statusID", status.ID), zap.Error(err))
		body = malformedMessage(&status.Account)
	case errors.Is(err, domainerrors.ErrInsufficientBalance):
		metrics.TipOutcomesTotal.WithLabelValues("insufficient_balance").Inc()
		body = insufficientShortMessage(&status.Account)
	case errors.Is(err, domainerrors.ErrAccountUnopened):
		metrics.TipOutcomesTotal.WithLabelValues("account_unopened").Inc()
		body = unopenedShortMessage(&status.Account)
	default:
		metrics.TipOutcomesTotal.WithLabelValues("error").Inc()
		s.logger.Error("Tip failed", zap.String("statusID", status.ID), zap.Error(err))
		body = genericFailureMessage(&status.Account)
	}
	return s.replyOrAck(ctx, status, body)
}

// replyOrAck posts an outcome reply, or just favourites the status when the
// bot runs in silent mode.
func (s *Service) replyOrAck(ctx context.Context, status *entities.Status, body string) error {
	if s.silent {
		return s.social.Favourite(ctx, status.ID)
	}
	return s.reply(ctx, status, body)
}

func (s *Service) reply(ctx context.Context, status *entities.Status, body string) error {
	_, err := s.replyStatus(ctx, status, body)
	return err
}

func (s *Service) replyStatus(ctx context.Context, status *entities.Status, body string) (*entities.Status, error) {
	visibility := status.Visibility
	if visibility == entities.VisibilityPublic {
		visibility = entities.VisibilityUnlisted
	}
	return s.social.PostStatus(ctx, body, status.ID, visibility)
}

func (s *Service) replyDirect(ctx context.Context, status *entities.Status, body string) error {
	_, err := s.social.PostStatus(ctx, body, status.ID, entities.VisibilityDirect)
	return err
}
