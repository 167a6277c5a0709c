// Package accounts assigns fediverse identities their custodial ledger
// accounts: a dense, strictly increasing index per identity and a
// keypair derived on demand from the master seed.
package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xnotip/tipbot_service/internal/domain/entities"
	domainerrors "github.com/xnotip/tipbot_service/internal/domain/errors"
	"github.com/xnotip/tipbot_service/pkg/nanocrypto"
)

// AccountRepository is the persistence collaborator
type AccountRepository interface {
	Insert(ctx context.Context, account *entities.Account) error
	FindBySocialID(ctx context.Context, socialID string) (*entities.Account, error)
	FindByLedgerAddress(ctx context.Context, address string) (*entities.Account, error)
	FindMaxIndex(ctx context.Context) (int64, error)
	ListAll(ctx context.Context) ([]*entities.Account, error)
}

// Service is the account indexer
type Service struct {
	repo   AccountRepository
	seed   string
	logger *zap.Logger
}

// NewService creates a new account indexer
func NewService(repo AccountRepository, seed string, logger *zap.Logger) *Service {
	return &Service{repo: repo, seed: seed, logger: logger}
}

// Resolve looks up the account for a social identity. Returns
// ErrNotFound when the identity has never been provisioned.
func (s *Service) Resolve(ctx context.Context, socialID string) (*entities.Account, error) {
	return s.repo.FindBySocialID(ctx, socialID)
}

// ResolveByAddress looks up the account owning a custodial ledger address
func (s *Service) ResolveByAddress(ctx context.Context, address string) (*entities.Account, error) {
	return s.repo.FindByLedgerAddress(ctx, address)
}

// Provision assigns the next free ledger index to a social identity,
// derives its address and persists the mapping. Index assignment is
// read-max-then-insert; the unique constraint on ledger_index is the
// backstop when two provisioners race, in which case the loser re-reads
// and tries the next index. Every retry means a competing provision
// succeeded, so the loop cannot livelock.
func (s *Service) Provision(ctx context.Context, socialID string) (*entities.Account, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		maxIndex, err := s.repo.FindMaxIndex(ctx)
		if err != nil {
			return nil, err
		}
		nextIndex := uint32(maxIndex + 1)

		address, _, err := s.DeriveKeypair(nextIndex)
		if err != nil {
			return nil, err
		}

		account := &entities.Account{
			ID:            uuid.New(),
			SocialID:      socialID,
			LedgerIndex:   nextIndex,
			LedgerAddress: address,
		}

		err = s.repo.Insert(ctx, account)
		if err == nil {
			s.logger.Info("Provisioned custodial account",
				zap.String("socialID", socialID),
				zap.Uint32("ledgerIndex", nextIndex),
				zap.String("address", address))
			return account, nil
		}

		if !errors.Is(err, domainerrors.ErrAlreadyExists) {
			return nil, err
		}

		// Either another provisioner claimed the index, or this same
		// identity was provisioned concurrently. The latter is terminal.
		if existing, lookupErr := s.repo.FindBySocialID(ctx, socialID); lookupErr == nil {
			return existing, nil
		}

		s.logger.Debug("Ledger index race, retrying provisioning",
			zap.String("socialID", socialID),
			zap.Uint32("ledgerIndex", nextIndex))
	}
}

// DeriveKeypair derives the address and private key for a ledger index.
// Pure and deterministic; the private key never touches storage.
func (s *Service) DeriveKeypair(index uint32) (address, privateKey string, err error) {
	privateKey, err = nanocrypto.DeriveSecretKey(s.seed, index)
	if err != nil {
		return "", "", fmt.Errorf("derive secret key: %w", err)
	}
	publicKey, err := nanocrypto.DerivePublicKey(privateKey)
	if err != nil {
		return "", "", fmt.Errorf("derive public key: %w", err)
	}
	address, err = nanocrypto.EncodeAddress(publicKey)
	if err != nil {
		return "", "", fmt.Errorf("encode address: %w", err)
	}
	return address, privateKey, nil
}

// KeyForAddress re-derives the private key for a custodial address.
// Used by the ledger state manager when sweeping receivables.
func (s *Service) KeyForAddress(ctx context.Context, address string) (string, error) {
	account, err := s.repo.FindByLedgerAddress(ctx, address)
	if err != nil {
		return "", err
	}
	_, privateKey, err := s.DeriveKeypair(account.LedgerIndex)
	return privateKey, err
}

// ListAll returns every custodial account
func (s *Service) ListAll(ctx context.Context) ([]*entities.Account, error) {
	return s.repo.ListAll(ctx)
}
