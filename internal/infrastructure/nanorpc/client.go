// Package nanorpc talks to the ledger node's JSON RPC and to the
// external work-generation service. Both are treated as opaque remote
// collaborators: documented request/response contracts, bounded
// timeouts, circuit breaking.
package nanorpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/xnotip/tipbot_service/internal/domain/entities"
	domainerrors "github.com/xnotip/tipbot_service/internal/domain/errors"
	"github.com/xnotip/tipbot_service/pkg/metrics"
)

const defaultTimeout = 30 * time.Second

// ErrAccountNotFound is returned by AccountInfo for accounts the node
// has no confirmed state for. Callers decide whether that means
// "unopened" or "unopened but receivables pending".
var ErrAccountNotFound = errors.New("account not found on ledger")

// Config represents ledger node client configuration
type Config struct {
	RPCURL  string
	Timeout time.Duration
}

// Client is the ledger node RPC client
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewClient creates a new ledger node client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	config.RPCURL = strings.TrimRight(config.RPCURL, "/")

	st := gobreaker.Settings{
		Name:        "nano-rpc",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(st),
		logger:         logger,
	}
}

type accountInfoRequest struct {
	Action           string `json:"action"`
	Account          string `json:"account"`
	Representative   string `json:"representative"`
	IncludeConfirmed string `json:"include_confirmed"`
	Receivable       string `json:"receivable"`
}

type accountInfoResponse struct {
	Error                   string `json:"error"`
	ConfirmedBalance        string `json:"confirmed_balance"`
	ConfirmedFrontier       string `json:"confirmed_frontier"`
	ConfirmedRepresentative string `json:"confirmed_representative"`
	ConfirmedReceivable     string `json:"confirmed_receivable"`
	ConfirmedPending        string `json:"confirmed_pending"`
}

// AccountInfo queries the confirmed state of an account. The returned
// receivable total covers confirmed-but-unswept inbound transfers.
func (c *Client) AccountInfo(ctx context.Context, account string) (*entities.AccountState, string, error) {
	var resp accountInfoResponse
	err := c.call(ctx, "account_info", accountInfoRequest{
		Action:           "account_info",
		Account:          account,
		Representative:   "true",
		IncludeConfirmed: "true",
		Receivable:       "true",
	}, &resp)
	if err != nil {
		return nil, "", err
	}
	if resp.Error != "" {
		if strings.EqualFold(resp.Error, "Account not found") {
			return nil, "", ErrAccountNotFound
		}
		return nil, "", domainerrors.LedgerRejectedError(resp.Error)
	}

	receivable := resp.ConfirmedReceivable
	if receivable == "" {
		receivable = resp.ConfirmedPending
	}

	return &entities.AccountState{
		Balance:        resp.ConfirmedBalance,
		Frontier:       resp.ConfirmedFrontier,
		Representative: resp.ConfirmedRepresentative,
	}, receivable, nil
}

type receivableRequest struct {
	Action  string `json:"action"`
	Account string `json:"account"`
	Source  string `json:"source"`
}

type receivableResponse struct {
	Error  string          `json:"error"`
	Blocks json.RawMessage `json:"blocks"`
}

type receivableBlock struct {
	Amount string `json:"amount"`
	Source string `json:"source"`
}

// Receivables lists pending inbound transfers for an account, in
// ascending source-block-hash order. The node answers with a JSON map,
// so sorting is what makes sweeps reproducible.
func (c *Client) Receivables(ctx context.Context, account string) ([]entities.Receivable, error) {
	var resp receivableResponse
	err := c.call(ctx, "receivable", receivableRequest{
		Action:  "receivable",
		Account: account,
		Source:  "true",
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, domainerrors.LedgerRejectedError(resp.Error)
	}

	// An account with nothing pending answers with blocks:"" instead of
	// an empty object.
	trimmed := strings.TrimSpace(string(resp.Blocks))
	if trimmed == "" || trimmed == `""` || trimmed == "null" {
		return nil, nil
	}

	var blocks map[string]receivableBlock
	if err := json.Unmarshal(resp.Blocks, &blocks); err != nil {
		return nil, fmt.Errorf("decode receivable blocks: %w", err)
	}

	out := make([]entities.Receivable, 0, len(blocks))
	for hash, block := range blocks {
		out = append(out, entities.Receivable{Hash: hash, Amount: block.Amount, Source: block.Source})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out, nil
}

type processRequest struct {
	Action    string       `json:"action"`
	JSONBlock string       `json:"json_block"`
	Subtype   string       `json:"subtype"`
	Block     processBlock `json:"block"`
}

type processBlock struct {
	Type string `json:"type"`
	entities.StateBlock
	Signature string `json:"signature"`
	Work      string `json:"work"`
}

type processResponse struct {
	Error string `json:"error"`
	Hash  string `json:"hash"`
}

// Process submits a signed state block. subtype is "send" or
// "receive". Returns the resulting block hash, or ErrLedgerRejected
// with the node's reason.
func (c *Client) Process(ctx context.Context, subtype string, block entities.StateBlock, signature, work string) (string, error) {
	var resp processResponse
	err := c.call(ctx, "process", processRequest{
		Action:    "process",
		JSONBlock: "true",
		Subtype:   subtype,
		Block: processBlock{
			Type:       "state",
			StateBlock: block,
			Signature:  signature,
			Work:       work,
		},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", domainerrors.LedgerRejectedError(resp.Error)
	}

	metrics.BlocksSubmittedTotal.WithLabelValues(subtype).Inc()
	return resp.Hash, nil
}

func (c *Client) call(ctx context.Context, action string, request, response interface{}) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", action, err)
	}

	start := time.Now()
	defer func() {
		metrics.RPCDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	}()

	raw, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.RPCURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("node returned status %d", resp.StatusCode)
		}

		var decoded json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", action, err)
		}
		return decoded, nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return domainerrors.NewDomainError(domainerrors.ErrUpstreamTimeout,
				"NODE_TIMEOUT", fmt.Sprintf("%s timed out", action))
		}
		return fmt.Errorf("%s: %w", action, err)
	}

	return json.Unmarshal(raw.(json.RawMessage), response)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
