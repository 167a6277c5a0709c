package receivables_sweeper

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/xnotip/tipbot_service/internal/domain/entities"
)

type staticLister struct {
	accounts []*entities.Account
	err      error
}

func (s *staticLister) ListAll(context.Context) ([]*entities.Account, error) {
	return s.accounts, s.err
}

type recordingSweeper struct {
	mu      sync.Mutex
	swept   []string
	failFor string
}

func (r *recordingSweeper) SweepReceivables(_ context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if address == r.failFor {
		return fmt.Errorf("node unavailable")
	}
	r.swept = append(r.swept, address)
	return nil
}

func TestRunOnceSweepsEveryAccount(t *testing.T) {
	lister := &staticLister{accounts: []*entities.Account{
		{LedgerAddress: "nano_a"},
		{LedgerAddress: "nano_b"},
		{LedgerAddress: "nano_c"},
	}}
	sweeper := &recordingSweeper{}
	worker := NewWorker(lister, sweeper, &Config{RunTimeout: time.Second}, zap.NewNop())

	worker.RunOnce(context.Background())
	assert.Equal(t, []string{"nano_a", "nano_b", "nano_c"}, sweeper.swept)
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	lister := &staticLister{accounts: []*entities.Account{
		{LedgerAddress: "nano_a"},
		{LedgerAddress: "nano_broken"},
		{LedgerAddress: "nano_c"},
	}}
	sweeper := &recordingSweeper{failFor: "nano_broken"}
	worker := NewWorker(lister, sweeper, nil, zap.NewNop())

	worker.RunOnce(context.Background())
	assert.Equal(t, []string{"nano_a", "nano_c"}, sweeper.swept)
}

func TestRunOnceListFailure(t *testing.T) {
	lister := &staticLister{err: fmt.Errorf("db down")}
	sweeper := &recordingSweeper{}
	worker := NewWorker(lister, sweeper, nil, zap.NewNop())

	worker.RunOnce(context.Background())
	assert.Empty(t, sweeper.swept)
}
