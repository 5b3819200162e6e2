package core

// rpc.go — thin façade over the blockchain JSON-RPC endpoint: batched
// account reads, balance reads, transaction submit/confirm, and
// subscribe-to-account-change over the companion websocket endpoint.
// Retries transient failures with exponential backoff on rate-limit
// responses (spec.md §2, §6).
//
// Grounded on the retry-loop shape of the pumpfun/pumpswap reference files'
// buildAndSubmitTransaction, re-expressed without the cenkalti/backoff
// dependency (not present anywhere in the teacher lineage) as a hand-rolled
// exponential backoff in the teacher's own idiom (see DESIGN.md). The
// client-side rate limiter mirrors peterzen-dcrdex's server/comms use of
// golang.org/x/time/rate to shape outbound request bursts.

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// CommitmentConfirmed is the only commitment level this engine uses
// (spec.md §6).
const CommitmentConfirmed = "confirmed"

// AccountInfo is the decoded response of getAccountInfo / part of
// getMultipleAccounts.
type AccountInfo struct {
	Exists   bool
	Owner    Address
	Lamports uint64
	Data     []byte
}

// Blockhash identifies a recent blockhash used to build a transaction.
type Blockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// ProgramAccountFilter restricts a GetProgramAccounts call, e.g. a
// memcmp filter at a known offset (spec.md §4.3 pool index query).
type ProgramAccountFilter struct {
	Offset int
	Bytes  []byte
}

// ProgramAccount pairs an address with its account data, returned by
// GetProgramAccounts.
type ProgramAccount struct {
	Address Address
	Info    AccountInfo
}

// AccountChangeCallback receives decoded account updates pushed over the
// websocket subscription.
type AccountChangeCallback func(AccountInfo)

// RPCClient is the façade this package's callers consume. It is shared
// (reentrant) across every worker goroutine, per spec.md §5.
type RPCClient interface {
	GetAccountInfo(ctx context.Context, addr Address) (AccountInfo, error)
	GetMultipleAccounts(ctx context.Context, addrs []Address) ([]AccountInfo, error)
	GetBalance(ctx context.Context, addr Address) (uint64, error)
	GetTokenAccountBalance(ctx context.Context, addr Address) (uint64, error)
	GetLatestBlockhash(ctx context.Context) (Blockhash, error)
	SendRawTransaction(ctx context.Context, raw []byte) (string, error)
	ConfirmTransaction(ctx context.Context, signature string) error
	GetProgramAccounts(ctx context.Context, program Address, filters []ProgramAccountFilter) ([]ProgramAccount, error)
	SubscribeAccountChange(ctx context.Context, addr Address, cb AccountChangeCallback) (unsubscribe func(), err error)
}

// HTTPRPCClient is the production RPCClient: JSON-RPC over HTTP, plus a
// lazily-connected websocket for account subscriptions.
type HTTPRPCClient struct {
	httpURL    string
	wsURL      string
	httpClient *http.Client
	maxRetries int
	logger     *log.Logger
	limiter    *rate.Limiter

	reqID int64

	wsMu   sync.Mutex
	wsConn *websocket.Conn
}

// defaultRequestsPerSecond is the client-side request ceiling applied ahead
// of the provider's own rate limit, so a fleet of workers backs off smoothly
// instead of tripping KindRateLimited on every provider (spec.md §7).
const defaultRequestsPerSecond = 40

// NewHTTPRPCClient constructs a client against httpURL (required) and wsURL
// (optional — SubscribeAccountChange errors if empty).
func NewHTTPRPCClient(httpURL, wsURL string, timeout time.Duration, maxRetries int, lg *log.Logger) *HTTPRPCClient {
	if lg == nil {
		lg = log.StandardLogger()
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &HTTPRPCClient{
		httpURL:    httpURL,
		wsURL:      wsURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		logger:     lg,
		limiter:    rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestsPerSecond),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// call performs one JSON-RPC round trip with exponential backoff retry on
// rate-limit / transient-network classifications, up to maxRetries, capped
// at 10s between attempts (spec.md §7 RateLimited policy).
func (c *HTTPRPCClient) call(ctx context.Context, method string, params any, out any) error {
	id := atomic.AddInt64(&c.reqID, 1)
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal rpc request %s: %w", method, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			c.logger.Debugf("rpc %s retry %d after %s: %v", method, attempt, delay, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.doRequest(ctx, body)
		if err != nil {
			lastErr = err
			if Classify(err) == KindRateLimited || Classify(err) == KindTransientNetwork {
				continue
			}
			return err
		}
		if resp.Error != nil {
			lastErr = resp.Error
			if Classify(resp.Error) == KindRateLimited {
				continue
			}
			return resp.Error
		}
		if out != nil {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return fmt.Errorf("decode rpc result for %s: %w", method, err)
			}
		}
		return nil
	}
	return fmt.Errorf("rpc %s exhausted %d retries: %w", method, c.maxRetries, lastErr)
}

func (c *HTTPRPCClient) doRequest(ctx context.Context, body []byte) (*rpcResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.httpURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewClassifiedError(KindTransientNetwork, "rpc transport: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewClassifiedError(KindTransientNetwork, "read rpc body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, NewClassifiedError(KindRateLimited, "rpc rate limited: %s", string(data))
	}
	if resp.StatusCode >= 500 {
		return nil, NewClassifiedError(KindTransientNetwork, "rpc server error %d: %s", resp.StatusCode, string(data))
	}

	var out rpcResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode rpc envelope: %w", err)
	}
	return &out, nil
}

// backoffDelay implements the exponential-backoff-on-rate-limit policy from
// spec.md §7: capped at 10s, growing with attempt count.
func backoffDelay(attempt int) time.Duration {
	d := time.Duration(float64(200*time.Millisecond) * math.Pow(2, float64(attempt)))
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

type accountInfoResultValue struct {
	Owner    string `json:"owner"`
	Lamports uint64 `json:"lamports"`
	Data     []any  `json:"data"` // [base64 string, encoding]
}

type accountInfoResult struct {
	Value *accountInfoResultValue `json:"value"`
}

func decodeAccountInfoValue(v *accountInfoResultValue) (AccountInfo, error) {
	if v == nil {
		return AccountInfo{Exists: false}, nil
	}
	owner, err := ParseAddress(v.Owner)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("decode account owner: %w", err)
	}
	var data []byte
	if len(v.Data) > 0 {
		if s, ok := v.Data[0].(string); ok {
			data, err = base64.StdEncoding.DecodeString(s)
			if err != nil {
				return AccountInfo{}, fmt.Errorf("decode account data: %w", err)
			}
		}
	}
	return AccountInfo{Exists: true, Owner: owner, Lamports: v.Lamports, Data: data}, nil
}

// GetAccountInfo fetches and decodes a single account.
func (c *HTTPRPCClient) GetAccountInfo(ctx context.Context, addr Address) (AccountInfo, error) {
	var result accountInfoResult
	params := []any{addr.String(), map[string]string{"encoding": "base64", "commitment": CommitmentConfirmed}}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return AccountInfo{}, err
	}
	return decodeAccountInfoValue(result.Value)
}

type multipleAccountsResult struct {
	Value []*accountInfoResultValue `json:"value"`
}

// GetMultipleAccounts batches account reads into a single RPC round trip.
func (c *HTTPRPCClient) GetMultipleAccounts(ctx context.Context, addrs []Address) ([]AccountInfo, error) {
	keys := make([]string, len(addrs))
	for i, a := range addrs {
		keys[i] = a.String()
	}
	var result multipleAccountsResult
	params := []any{keys, map[string]string{"encoding": "base64", "commitment": CommitmentConfirmed}}
	if err := c.call(ctx, "getMultipleAccounts", params, &result); err != nil {
		return nil, err
	}
	out := make([]AccountInfo, len(result.Value))
	for i, v := range result.Value {
		info, err := decodeAccountInfoValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = info
	}
	return out, nil
}

type balanceResult struct {
	Value uint64 `json:"value"`
}

// GetBalance returns the lamport (native-token) balance of addr.
func (c *HTTPRPCClient) GetBalance(ctx context.Context, addr Address) (uint64, error) {
	var result balanceResult
	params := []any{addr.String(), map[string]string{"commitment": CommitmentConfirmed}}
	if err := c.call(ctx, "getBalance", params, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

type tokenBalanceResultValue struct {
	Amount string `json:"amount"`
}
type tokenBalanceResult struct {
	Value tokenBalanceResultValue `json:"value"`
}

// GetTokenAccountBalance returns the raw token amount held in a token
// account (decimals are applied by the caller, per the mint's decimals).
func (c *HTTPRPCClient) GetTokenAccountBalance(ctx context.Context, addr Address) (uint64, error) {
	var result tokenBalanceResult
	params := []any{addr.String(), map[string]string{"commitment": CommitmentConfirmed}}
	if err := c.call(ctx, "getTokenAccountBalance", params, &result); err != nil {
		return 0, err
	}
	var amount uint64
	if _, err := fmt.Sscanf(result.Value.Amount, "%d", &amount); err != nil {
		return 0, fmt.Errorf("parse token amount %q: %w", result.Value.Amount, err)
	}
	return amount, nil
}

type blockhashResultValue struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}
type blockhashResult struct {
	Value blockhashResultValue `json:"value"`
}

// GetLatestBlockhash fetches a recent blockhash for transaction assembly.
func (c *HTTPRPCClient) GetLatestBlockhash(ctx context.Context) (Blockhash, error) {
	var result blockhashResult
	params := []any{map[string]string{"commitment": CommitmentConfirmed}}
	if err := c.call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return Blockhash{}, err
	}
	return Blockhash{Blockhash: result.Value.Blockhash, LastValidBlockHeight: result.Value.LastValidBlockHeight}, nil
}

// SendRawTransaction submits a signed, serialized transaction and returns
// its signature. Submission is fire-and-confirm: a submitted-but-unconfirmed
// transaction may still land after this call returns (spec.md §4.4
// Cancellation).
func (c *HTTPRPCClient) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	var sig string
	params := []any{base64.StdEncoding.EncodeToString(raw), map[string]any{"encoding": "base64", "preflightCommitment": CommitmentConfirmed}}
	if err := c.call(ctx, "sendTransaction", params, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

type signatureStatusValue struct {
	ConfirmationStatus string `json:"confirmationStatus"`
	Err                any    `json:"err"`
}
type signatureStatusesResult struct {
	Value []*signatureStatusValue `json:"value"`
}

// ConfirmTransaction polls getSignatureStatuses until the signature reaches
// "confirmed" or the context is cancelled.
func (c *HTTPRPCClient) ConfirmTransaction(ctx context.Context, signature string) error {
	for {
		var result signatureStatusesResult
		params := []any{[]string{signature}}
		if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
			return err
		}
		if len(result.Value) == 1 && result.Value[0] != nil {
			v := result.Value[0]
			if v.Err != nil {
				return NewClassifiedError(KindFatal, "transaction %s failed on-chain: %v", signature, v.Err)
			}
			if v.ConfirmationStatus == CommitmentConfirmed || v.ConfirmationStatus == "finalized" {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

type programAccountsResultEntry struct {
	Pubkey  string                  `json:"pubkey"`
	Account accountInfoResultValue `json:"account"`
}

// GetProgramAccounts runs a filtered scan of a program's owned accounts.
// Optional: not every RPC provider supports it (spec.md §6); callers must
// treat an error here as "fall back to brute-force derivation", not fatal.
func (c *HTTPRPCClient) GetProgramAccounts(ctx context.Context, program Address, filters []ProgramAccountFilter) ([]ProgramAccount, error) {
	var rpcFilters []map[string]any
	for _, f := range filters {
		rpcFilters = append(rpcFilters, map[string]any{
			"memcmp": map[string]any{
				"offset": f.Offset,
				"bytes":  base64.StdEncoding.EncodeToString(f.Bytes),
			},
		})
	}
	var result []programAccountsResultEntry
	params := []any{program.String(), map[string]any{"encoding": "base64", "commitment": CommitmentConfirmed, "filters": rpcFilters}}
	if err := c.call(ctx, "getProgramAccounts", params, &result); err != nil {
		return nil, err
	}
	out := make([]ProgramAccount, 0, len(result))
	for _, e := range result {
		addr, err := ParseAddress(e.Pubkey)
		if err != nil {
			continue
		}
		info, err := decodeAccountInfoValue(&e.Account)
		if err != nil {
			continue
		}
		out = append(out, ProgramAccount{Address: addr, Info: info})
	}
	return out, nil
}

type wsEnvelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type wsAccountNotificationParams struct {
	Result struct {
		Value accountInfoResultValue `json:"value"`
	} `json:"result"`
	Subscription int `json:"subscription"`
}

// SubscribeAccountChange opens (or reuses) the websocket connection and
// subscribes to account-change notifications for addr, invoking cb on every
// update. The returned unsubscribe function tears down just this
// subscription; the shared connection stays open for other subscribers.
func (c *HTTPRPCClient) SubscribeAccountChange(ctx context.Context, addr Address, cb AccountChangeCallback) (func(), error) {
	if c.wsURL == "" {
		return nil, fmt.Errorf("no websocket endpoint configured (RPC_WS_URL unset)")
	}
	conn, err := c.wsConnection(ctx)
	if err != nil {
		return nil, err
	}

	id := atomic.AddInt64(&c.reqID, 1)
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: "accountSubscribe", Params: []any{addr.String(), map[string]string{"encoding": "base64", "commitment": CommitmentConfirmed}}}
	body, _ := json.Marshal(req)

	c.wsMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, body)
	c.wsMu.Unlock()
	if err != nil {
		return nil, NewClassifiedError(KindTransientNetwork, "account subscribe write: %w", err)
	}

	done := make(chan struct{})
	go c.readLoop(conn, cb, done)

	return func() { close(done) }, nil
}

func (c *HTTPRPCClient) wsConnection(ctx context.Context) (*websocket.Conn, error) {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	if c.wsConn != nil {
		return c.wsConn, nil
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return nil, NewClassifiedError(KindTransientNetwork, "websocket dial: %w", err)
	}
	c.wsConn = conn
	return conn, nil
}

func (c *HTTPRPCClient) readLoop(conn *websocket.Conn, cb AccountChangeCallback, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warnf("account subscription read error: %v", err)
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(msg, &env); err != nil || env.Method != "accountNotification" {
			continue
		}
		var params wsAccountNotificationParams
		if err := json.Unmarshal(env.Params, &params); err != nil {
			continue
		}
		info, err := decodeAccountInfoValue(&params.Result.Value)
		if err != nil {
			continue
		}
		cb(info)
	}
}
