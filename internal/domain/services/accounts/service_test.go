package accounts_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xnotip/tipbot_service/internal/domain/entities"
	domainerrors "github.com/xnotip/tipbot_service/internal/domain/errors"
	"github.com/xnotip/tipbot_service/internal/domain/services/accounts"
	"github.com/xnotip/tipbot_service/pkg/nanocrypto"
)

const testSeed = "0000000000000000000000000000000000000000000000000000000000000000"

// mockAccountRepo simulates the accounts table including its unique
// constraints on social_id and ledger_index.
type mockAccountRepo struct {
	mu       sync.Mutex
	bySocial map[string]*entities.Account
	byIndex  map[uint32]*entities.Account
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{
		bySocial: make(map[string]*entities.Account),
		byIndex:  make(map[uint32]*entities.Account),
	}
}

func (m *mockAccountRepo) Insert(ctx context.Context, account *entities.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bySocial[account.SocialID]; ok {
		return domainerrors.NewDomainError(domainerrors.ErrAlreadyExists, "ACCOUNT_EXISTS", "social id conflict")
	}
	if _, ok := m.byIndex[account.LedgerIndex]; ok {
		return domainerrors.NewDomainError(domainerrors.ErrAlreadyExists, "ACCOUNT_EXISTS", "ledger index conflict")
	}
	m.bySocial[account.SocialID] = account
	m.byIndex[account.LedgerIndex] = account
	return nil
}

func (m *mockAccountRepo) FindBySocialID(ctx context.Context, socialID string) (*entities.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.bySocial[socialID]; ok {
		return a, nil
	}
	return nil, domainerrors.NotFoundError("account")
}

func (m *mockAccountRepo) FindByLedgerAddress(ctx context.Context, address string) (*entities.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.bySocial {
		if a.LedgerAddress == address {
			return a, nil
		}
	}
	return nil, domainerrors.NotFoundError("account")
}

func (m *mockAccountRepo) FindMaxIndex(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := int64(-1)
	for idx := range m.byIndex {
		if int64(idx) > max {
			max = int64(idx)
		}
	}
	return max, nil
}

func (m *mockAccountRepo) ListAll(ctx context.Context) ([]*entities.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entities.Account, 0, len(m.bySocial))
	for _, a := range m.bySocial {
		out = append(out, a)
	}
	return out, nil
}

func newService(repo accounts.AccountRepository) *accounts.Service {
	return accounts.NewService(repo, testSeed, zap.NewNop())
}

func TestProvisionAssignsDenseIndexes(t *testing.T) {
	svc := newService(newMockAccountRepo())
	ctx := context.Background()

	first, err := svc.Provision(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), first.LedgerIndex)

	second, err := svc.Provision(ctx, "user-b")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), second.LedgerIndex)
	assert.NotEqual(t, first.LedgerAddress, second.LedgerAddress)
	assert.True(t, strings.HasPrefix(first.LedgerAddress, "nano_"))
}

func TestProvisionIsIdempotentPerIdentity(t *testing.T) {
	svc := newService(newMockAccountRepo())
	ctx := context.Background()

	first, err := svc.Provision(ctx, "user-a")
	require.NoError(t, err)

	again, err := svc.Provision(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, first.LedgerIndex, again.LedgerIndex)
}

func TestProvisionConcurrentNeverReusesIndex(t *testing.T) {
	repo := newMockAccountRepo()
	svc := newService(repo)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	results := make([]*entities.Account, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Provision(ctx, "user-"+string(rune('a'+i)))
		}(i)
	}
	wg.Wait()

	seen := make(map[uint32]bool)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[results[i].LedgerIndex], "index %d assigned twice", results[i].LedgerIndex)
		seen[results[i].LedgerIndex] = true
	}
}

func TestResolveNotFound(t *testing.T) {
	svc := newService(newMockAccountRepo())
	_, err := svc.Resolve(context.Background(), "nobody")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestDeriveKeypairDeterministic(t *testing.T) {
	svc := newService(newMockAccountRepo())

	addr1, key1, err := svc.DeriveKeypair(7)
	require.NoError(t, err)
	addr2, key2, err := svc.DeriveKeypair(7)
	require.NoError(t, err)

	assert.Equal(t, addr1, addr2)
	assert.Equal(t, key1, key2)
	assert.True(t, nanocrypto.CheckAddress(addr1))
}

func TestKeyForAddress(t *testing.T) {
	repo := newMockAccountRepo()
	svc := newService(repo)
	ctx := context.Background()

	account, err := svc.Provision(ctx, "user-a")
	require.NoError(t, err)

	key, err := svc.KeyForAddress(ctx, account.LedgerAddress)
	require.NoError(t, err)

	_, wantKey, err := svc.DeriveKeypair(account.LedgerIndex)
	require.NoError(t, err)
	assert.Equal(t, wantKey, key)

	_, err = svc.KeyForAddress(ctx, "nano_unknown")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}
