package nanorpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	domainerrors "github.com/xnotip/tipbot_service/internal/domain/errors"
	"github.com/xnotip/tipbot_service/pkg/metrics"
	"github.com/xnotip/tipbot_service/pkg/retry"
)

// WorkClient fetches proof-of-work tokens from the external
// work-generation service. Work generation is idempotent for a given
// hash, so failed calls are retried.
type WorkClient struct {
	baseURL    string
	httpClient *http.Client
	retrier    *retry.Retrier
	logger     *zap.Logger
}

// NewWorkClient creates a new work service client
func NewWorkClient(baseURL string, timeout time.Duration, logger *zap.Logger) *WorkClient {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &WorkClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retrier:    retry.NewRetrier(retry.DefaultPolicy(), logger),
		logger:     logger,
	}
}

type workResponse struct {
	Work string `json:"work"`
}

// WorkFor returns a proof-of-work token for a frontier hash, or for an
// account public key when the account has no blocks yet.
func (w *WorkClient) WorkFor(ctx context.Context, hash string) (string, error) {
	start := time.Now()
	defer func() {
		metrics.RPCDuration.WithLabelValues("work").Observe(time.Since(start).Seconds())
	}()

	var work string
	err := w.retrier.Do(ctx, "work_generate", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/%s/pow", w.baseURL, hash), nil)
		if err != nil {
			return err
		}

		resp, err := w.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return fmt.Errorf("work service returned status %d", resp.StatusCode)
		}

		var decoded workResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return fmt.Errorf("decode work response: %w", err)
		}
		if decoded.Work == "" {
			return fmt.Errorf("work service returned empty work")
		}
		work = decoded.Work
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return "", domainerrors.NewDomainError(domainerrors.ErrUpstreamTimeout,
				"WORK_TIMEOUT", "work generation timed out")
		}
		return "", fmt.Errorf("work for %s: %w", hash, err)
	}
	return work, nil
}
