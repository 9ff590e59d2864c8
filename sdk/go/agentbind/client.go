// Package agentbind is the Go client SDK for the AgentBind REST API. It
// wraps the public read surface and the signed mutation endpoints; private
// keys never leave the caller, who supplies a Signer over the canonical
// envelope message.
package agentbind

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultHTTPTimeout is used by clients created without a custom
// http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Signer produces a 65-byte EIP-191 personal-sign signature over the
// canonical envelope message.
type Signer func(message string) ([]byte, error)

// NewKeySigner builds a Signer over a local private key. Callers holding
// keys in external wallets implement Signer themselves.
func NewKeySigner(key *ecdsa.PrivateKey) Signer {
	return func(message string) ([]byte, error) {
		return crypto.Sign(accounts.TextHash([]byte(message)), key)
	}
}

// Client wraps the HTTP interactions with the AgentBind REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	signer     Signer
	now        func() time.Time
}

// AgentBinding is the agent read response.
type AgentBinding struct {
	TokenID string `json:"token_id"`
	Agent   string `json:"agent"`
}

// PromptBinding is the prompt read response.
type PromptBinding struct {
	TokenID string `json:"token_id"`
	Prompt  string `json:"prompt"`
}

// Stats mirrors the service's indexer snapshot.
type Stats struct {
	AgentUpdates  uint64 `json:"agent_updates"`
	PromptUpdates uint64 `json:"prompt_updates"`
	TokensSeen    int    `json:"tokens_seen"`
	Failures      uint64 `json:"failures"`
}

// APIError represents server side rejections.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agentbind api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agentbind api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the AgentBind API. When httpClient
// is nil, a default client with a sensible timeout is used. The signer may
// be nil for read-only use.
func NewClient(rawURL string, httpClient *http.Client, signer Signer) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient, signer: signer, now: time.Now}, nil
}

// Agent fetches the bound agent address of a token.
func (c *Client) Agent(ctx context.Context, tokenID *big.Int) (AgentBinding, error) {
	var binding AgentBinding
	if err := c.get(ctx, fmt.Sprintf("/api/v1/tokens/%s/agent", tokenID.String()), &binding); err != nil {
		return AgentBinding{}, err
	}
	return binding, nil
}

// Prompt fetches the stored prompt of a token.
func (c *Client) Prompt(ctx context.Context, tokenID *big.Int) (PromptBinding, error) {
	var binding PromptBinding
	if err := c.get(ctx, fmt.Sprintf("/api/v1/tokens/%s/prompt", tokenID.String()), &binding); err != nil {
		return PromptBinding{}, err
	}
	return binding, nil
}

// Stats fetches the service's indexer snapshot.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := c.get(ctx, "/api/v1/stats", &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// UpdateAgent signs and submits an agent rebinding. The caller's wallet
// must be the token owner.
func (c *Client) UpdateAgent(ctx context.Context, tokenID *big.Int, agent string) (AgentBinding, error) {
	issuedAt, signature, err := c.signEnvelope("update_agent", tokenID, agent)
	if err != nil {
		return AgentBinding{}, err
	}
	payload := map[string]any{
		"agent":     agent,
		"issued_at": issuedAt,
		"signature": signature,
	}
	var binding AgentBinding
	if err := c.put(ctx, fmt.Sprintf("/api/v1/tokens/%s/agent", tokenID.String()), payload, &binding); err != nil {
		return AgentBinding{}, err
	}
	return binding, nil
}

// UpdatePrompt signs and submits a prompt rewrite. The caller's wallet
// must hold one of the recognised authorities, including the bound agent
// itself.
func (c *Client) UpdatePrompt(ctx context.Context, tokenID *big.Int, prompt string) (PromptBinding, error) {
	issuedAt, signature, err := c.signEnvelope("update_prompt", tokenID, prompt)
	if err != nil {
		return PromptBinding{}, err
	}
	payload := map[string]any{
		"prompt":    prompt,
		"issued_at": issuedAt,
		"signature": signature,
	}
	var binding PromptBinding
	if err := c.put(ctx, fmt.Sprintf("/api/v1/tokens/%s/prompt", tokenID.String()), payload, &binding); err != nil {
		return PromptBinding{}, err
	}
	return binding, nil
}

// canonicalMessage mirrors the service's envelope format: the value is
// folded through keccak256 so prompts of any size produce a fixed-width
// message.
func canonicalMessage(method string, tokenID *big.Int, value string, issuedAt int64) string {
	return fmt.Sprintf("agentbind/v1|%s|%s|%s|%d",
		method,
		tokenID.String(),
		hexutil.Encode(crypto.Keccak256([]byte(value))),
		issuedAt,
	)
}

func (c *Client) signEnvelope(method string, tokenID *big.Int, value string) (int64, string, error) {
	if c.signer == nil {
		return 0, "", fmt.Errorf("agentbind: client has no signer configured")
	}
	if tokenID == nil {
		return 0, "", fmt.Errorf("agentbind: token id is required")
	}
	issuedAt := c.now().Unix()
	signature, err := c.signer(canonicalMessage(method, tokenID, value, issuedAt))
	if err != nil {
		return 0, "", fmt.Errorf("sign envelope: %w", err)
	}
	return issuedAt, hexutil.Encode(signature), nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) put(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
