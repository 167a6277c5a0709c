package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/xnotip/tipbot_service/internal/domain/entities"
	domainerrors "github.com/xnotip/tipbot_service/internal/domain/errors"
)

// AccountRepository handles custodial account persistence
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Insert persists a newly provisioned account. The unique constraint on
// ledger_index is the correctness backstop for concurrent provisioning:
// a lost read-max-then-insert race surfaces here as ErrAlreadyExists and
// the caller re-reads and retries.
func (r *AccountRepository) Insert(ctx context.Context, account *entities.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("validate account: %w", err)
	}

	query := `
		INSERT INTO accounts (id, social_id, ledger_index, ledger_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := r.db.ExecContext(
		ctx,
		query,
		account.ID,
		account.SocialID,
		account.LedgerIndex,
		account.LedgerAddress,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return domainerrors.NewDomainError(domainerrors.ErrAlreadyExists,
				"ACCOUNT_EXISTS", fmt.Sprintf("account conflict on %s", pqErr.Constraint))
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// FindBySocialID retrieves the account mapped to a social identity
func (r *AccountRepository) FindBySocialID(ctx context.Context, socialID string) (*entities.Account, error) {
	query := `
		SELECT id, social_id, ledger_index, ledger_address, created_at, updated_at
		FROM accounts
		WHERE social_id = $1
	`

	var account entities.Account
	err := r.db.GetContext(ctx, &account, query, socialID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NotFoundError("account")
		}
		return nil, fmt.Errorf("find account by social id: %w", err)
	}

	return &account, nil
}

// FindByLedgerAddress retrieves the account owning a ledger address
func (r *AccountRepository) FindByLedgerAddress(ctx context.Context, address string) (*entities.Account, error) {
	query := `
		SELECT id, social_id, ledger_index, ledger_address, created_at, updated_at
		FROM accounts
		WHERE ledger_address = $1
	`

	var account entities.Account
	err := r.db.GetContext(ctx, &account, query, address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NotFoundError("account")
		}
		return nil, fmt.Errorf("find account by address: %w", err)
	}

	return &account, nil
}

// FindMaxIndex returns the highest assigned ledger index, or -1 when no
// accounts exist yet
func (r *AccountRepository) FindMaxIndex(ctx context.Context) (int64, error) {
	var max int64
	err := r.db.GetContext(ctx, &max, `SELECT COALESCE(MAX(ledger_index), -1) FROM accounts`)
	if err != nil {
		return 0, fmt.Errorf("find max ledger index: %w", err)
	}
	return max, nil
}

// ListAll returns every custodial account, ordered by ledger index
func (r *AccountRepository) ListAll(ctx context.Context) ([]*entities.Account, error) {
	query := `
		SELECT id, social_id, ledger_index, ledger_address, created_at, updated_at
		FROM accounts
		ORDER BY ledger_index ASC
	`

	var accounts []*entities.Account
	if err := r.db.SelectContext(ctx, &accounts, query); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}
