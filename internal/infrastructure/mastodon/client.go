// Package mastodon implements the social network collaborator: the
// REST client used for replies and profile lookups, and the streaming
// client that feeds the dispatcher.
package mastodon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/xnotip/tipbot_service/internal/domain/entities"
	domainerrors "github.com/xnotip/tipbot_service/internal/domain/errors"
)

const defaultTimeout = 15 * time.Second

// Config represents Mastodon API configuration
type Config struct {
	RestBaseURL string // e.g. https://social.example/api/v1
	AccessToken string
	Timeout     time.Duration
}

// Client is the Mastodon REST client
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewClient creates a new Mastodon REST client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	config.RestBaseURL = strings.TrimRight(config.RestBaseURL, "/")

	st := gobreaker.Settings{
		Name:        "mastodon-rest",
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

type postStatusRequest struct {
	Status      string `json:"status"`
	InReplyToID string `json:"in_reply_to_id,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
}

// PostStatus publishes a status, optionally as a reply, and returns it.
func (c *Client) PostStatus(ctx context.Context, body, inReplyToID, visibility string) (*entities.Status, error) {
	var status entities.Status
	err := c.do(ctx, http.MethodPost, "/statuses", postStatusRequest{
		Status:      body,
		InReplyToID: inReplyToID,
		Visibility:  visibility,
	}, &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// GetAccount fetches a profile, including its metadata fields.
func (c *Client) GetAccount(ctx context.Context, id string) (*entities.SocialAccount, error) {
	var account entities.SocialAccount
	if err := c.do(ctx, http.MethodGet, "/accounts/"+id, nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// VerifyCredentials returns the account the access token belongs to.
// The bot uses it at boot to learn its own account id.
func (c *Client) VerifyCredentials(ctx context.Context) (*entities.SocialAccount, error) {
	var account entities.SocialAccount
	if err := c.do(ctx, http.MethodGet, "/accounts/verify_credentials", nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetStatus fetches a single status by id.
func (c *Client) GetStatus(ctx context.Context, id string) (*entities.Status, error) {
	var status entities.Status
	if err := c.do(ctx, http.MethodGet, "/statuses/"+id, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Follow follows an account from the bot's identity.
func (c *Client) Follow(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/accounts/"+id+"/follow", nil, nil)
}

// Unfollow unfollows an account.
func (c *Client) Unfollow(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/accounts/"+id+"/unfollow", nil, nil)
}

// Favourite marks a status as favourited, used as the lightweight
// acknowledgement in silent mode.
func (c *Client) Favourite(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/statuses/"+id+"/favourite", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, request, response interface{}) error {
	var body *bytes.Reader
	if request != nil {
		raw, err := json.Marshal(request)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", path, err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	raw, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.config.RestBaseURL+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
		if request != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, domainerrors.NotFoundError("status or account")
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode)
		}

		var decoded json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", path, err)
		}
		return decoded, nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domainerrors.NewDomainError(domainerrors.ErrUpstreamTimeout,
				"MASTODON_TIMEOUT", fmt.Sprintf("%s timed out", path))
		}
		return err
	}

	if response == nil {
		return nil
	}
	return json.Unmarshal(raw.(json.RawMessage), response)
}
