package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"TriPot/config"

	"github.com/google/uuid"
)

type FlowType int

const (
	Debit  FlowType = 1
	Credit FlowType = 2
)

func (t FlowType) String() string {
	if t == Debit {
		return "debit"
	}
	return "credit"
}

// Flow is the body of POST <tenantBaseURL>/submitFlow.
type Flow struct {
	BetAmount     int64    `json:"betAmount"`
	Type          FlowType `json:"type"`
	TransactionID string   `json:"transactionId"`
}

type Response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Account identifies whose balance moves: the bearer token authorises the
// call and the tenant selects the wallet service.
type Account struct {
	Tenant string
	Token  string
}

type Receipt struct {
	TransactionID string
	Response      Response
	At            time.Time
}

var (
	ErrTimeout     = errors.New("wallet: timeout")
	ErrUnavailable = errors.New("wallet: unavailable")
)

// RejectedError carries the upstream refusal (non-2xx or success=false).
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("wallet: rejected (%d): %s", e.Status, e.Message)
}

// Cause is the user-facing reason for a failed wallet call.
func Cause(err error) string {
	var rej *RejectedError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.As(err, &rej):
		return rej.Message
	default:
		return err.Error()
	}
}

type Client struct {
	inner          *http.Client
	defaultBaseURL string
	tenants        map[string]string
	timeout        time.Duration
}

func NewClient(cfg config.Wallet) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	// viper 会把 map 的 key 转成小写，这里统一小写
	tenants := make(map[string]string, len(cfg.Tenants))
	for k, u := range cfg.Tenants {
		tenants[strings.ToLower(k)] = u
	}
	return &Client{
		inner:          &http.Client{},
		defaultBaseURL: cfg.DefaultBaseURL,
		tenants:        tenants,
		timeout:        timeout,
	}
}

func (c *Client) Debit(ctx context.Context, acct Account, amount int64) (*Receipt, error) {
	return c.move(ctx, acct, Debit, amount)
}

func (c *Client) Credit(ctx context.Context, acct Account, amount int64) (*Receipt, error) {
	return c.move(ctx, acct, Credit, amount)
}

func (c *Client) move(ctx context.Context, acct Account, typ FlowType, amount int64) (*Receipt, error) {
	flow := Flow{BetAmount: amount, Type: typ, TransactionID: uuid.NewString()}
	resp, err := c.Submit(ctx, acct, flow)
	if err != nil {
		return nil, err
	}
	return &Receipt{TransactionID: flow.TransactionID, Response: *resp, At: time.Now()}, nil
}

func (c *Client) baseURL(tenant string) string {
	if u, ok := c.tenants[strings.ToLower(tenant)]; ok && u != "" {
		return u
	}
	return c.defaultBaseURL
}

// Submit posts one flow. Every call is bounded by the client timeout and is
// never retried.
func (c *Client) Submit(ctx context.Context, acct Account, flow Flow) (*Response, error) {
	base := c.baseURL(acct.Tenant)
	if base == "" {
		return nil, fmt.Errorf("%w: no wallet for tenant %q", ErrUnavailable, acct.Tenant)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := json.Marshal(flow)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(base, "/") + "/submitFlow"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+acct.Token)

	httpResp, err := c.inner.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: %s %s", ErrTimeout, flow.Type, flow.TransactionID)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: %s %s", ErrTimeout, flow.Type, flow.TransactionID)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var out Response
	decodeErr := json.Unmarshal(body, &out)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		msg := out.Message
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(httpResp.StatusCode)
		}
		return nil, &RejectedError{Status: httpResp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, &RejectedError{Status: httpResp.StatusCode, Message: "malformed wallet response"}
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = "wallet declined"
		}
		return nil, &RejectedError{Status: httpResp.StatusCode, Message: msg}
	}
	return &out, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
