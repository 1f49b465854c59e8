package aptos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	contentTypeJSON = "application/json"
	contentTypeBCS  = "application/x.aptos.signed_transaction+bcs"
)

// Options tune the HTTP transport shared by the REST and indexer calls.
type Options struct {
	IndexerURL string
	APIKey     string
	Timeout    time.Duration
	RPS        int
	Burst      int
}

// Client talks to an Aptos fullnode REST API and, optionally, the indexer
// GraphQL endpoint.
type Client struct {
	baseURL    string
	indexerURL string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a client for baseURL (e.g. https://fullnode.testnet.aptoslabs.com/v1).
func NewClient(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = opts.RPS
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		indexerURL: opts.IndexerURL,
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    limiter,
	}
}

// URL returns the fullnode base URL.
func (c *Client) URL() string { return c.baseURL }

// LedgerInfo returns the node's view of the chain.
func (c *Client) LedgerInfo(ctx context.Context) (*LedgerInfo, error) {
	var info LedgerInfo
	if err := c.getJSON(ctx, "", nil, &info); err != nil {
		return nil, fmt.Errorf("get ledger info: %w", err)
	}
	return &info, nil
}

// Account returns the account resource summary for addr.
func (c *Client) Account(ctx context.Context, addr string) (*AccountInfo, error) {
	var acct AccountInfo
	if err := c.getJSON(ctx, "/accounts/"+NormalizeAddress(addr), nil, &acct); err != nil {
		return nil, fmt.Errorf("get account %s: %w", ShortAddress(addr), err)
	}
	return &acct, nil
}

// EstimateGasPrice returns the node's gas unit price estimate.
func (c *Client) EstimateGasPrice(ctx context.Context) (*GasEstimate, error) {
	var est GasEstimate
	if err := c.getJSON(ctx, "/estimate_gas_price", nil, &est); err != nil {
		return nil, fmt.Errorf("estimate gas price: %w", err)
	}
	return &est, nil
}

// EventsByHandle returns the most recent limit events stored under
// addr's handleStruct.field, in ascending sequence order.
func (c *Client) EventsByHandle(ctx context.Context, addr, handleStruct, field string, limit int) ([]Event, error) {
	path := fmt.Sprintf("/accounts/%s/events/%s/%s", NormalizeAddress(addr), url.PathEscape(handleStruct), url.PathEscape(field))
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var events []Event
	if err := c.getJSON(ctx, path, q, &events); err != nil {
		return nil, fmt.Errorf("get events %s/%s: %w", handleStruct, field, err)
	}
	return events, nil
}

// TransactionByHash returns a committed or pending transaction.
func (c *Client) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	var tx Transaction
	if err := c.getJSON(ctx, "/transactions/by_hash/"+hash, nil, &tx); err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", hash, err)
	}
	return &tx, nil
}

// SubmitBCS posts a BCS-encoded signed transaction.
func (c *Client) SubmitBCS(ctx context.Context, signed []byte) (*PendingTransaction, error) {
	data, err := c.do(ctx, http.MethodPost, c.baseURL+"/transactions", contentTypeBCS, signed)
	if err != nil {
		return nil, fmt.Errorf("submit transaction: %w", err)
	}
	var pending PendingTransaction
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending transaction: %w", err)
	}
	return &pending, nil
}

// SimulateBCS dry-runs a BCS-encoded transaction carrying a zeroed signature.
func (c *Client) SimulateBCS(ctx context.Context, signed []byte) ([]Transaction, error) {
	data, err := c.do(ctx, http.MethodPost, c.baseURL+"/transactions/simulate", contentTypeBCS, signed)
	if err != nil {
		return nil, fmt.Errorf("simulate transaction: %w", err)
	}
	var txs []Transaction
	if err := json.Unmarshal(data, &txs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal simulation: %w", err)
	}
	return txs, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// GraphQL runs a query against the indexer and decodes its data field into out.
func (c *Client) GraphQL(ctx context.Context, query string, vars map[string]any, out any) error {
	if c.indexerURL == "" {
		return fmt.Errorf("indexer url not configured")
	}
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal graphql request: %w", err)
	}
	data, err := c.do(ctx, http.MethodPost, c.indexerURL, contentTypeJSON, body)
	if err != nil {
		return fmt.Errorf("indexer query: %w", err)
	}
	var resp struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to unmarshal graphql response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return &APIError{Status: http.StatusBadRequest, Message: resp.Errors[0].Message, ErrorCode: "graphql_error"}
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal graphql data: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	data, err := c.do(ctx, http.MethodGet, u, "", nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, rawURL, contentType string, body []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", contentTypeJSON)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, data)
	}
	return data, nil
}
