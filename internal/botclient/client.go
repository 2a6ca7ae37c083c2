// Package botclient performs the outbound move request to a bot's registered
// endpoint. Every transport or protocol problem surfaces as a single typed
// CommFailure carrying a machine-readable reason code; callers branch on the
// reason, never on error classes.
package botclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/botarena/arena-go/internal/domain"
	"github.com/botarena/arena-go/internal/obslog"
	"github.com/botarena/arena-go/pkg/botapi"
)

// Reason codes for a failed move request.
const (
	ReasonTimeout         = "TIMEOUT"
	ReasonConnectionError = "CONNECTION_ERROR"
	ReasonInvalidResponse = "INVALID_RESPONSE"
)

// CommFailure is the single failure type for bot communication.
type CommFailure struct {
	Reason string
	Err    error
}

func (f *CommFailure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("bot communication failure: %s", f.Reason)
	}
	return fmt.Sprintf("bot communication failure: %s: %v", f.Reason, f.Err)
}

func (f *CommFailure) Unwrap() error { return f.Err }

// AsCommFailure unwraps err into a CommFailure, if it is one.
func AsCommFailure(err error) (*CommFailure, bool) {
	var cf *CommFailure
	if errors.As(err, &cf) {
		return cf, true
	}
	return nil, false
}

// Caller requests one move from a bot. Implemented by Client and by test
// stubs.
type Caller interface {
	RequestMove(ctx context.Context, bot *domain.Bot, req *botapi.MoveRequest) (*botapi.MoveResponse, error)
}

type Option func(*Client)

func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) { c.readTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

// Client is a fasthttp-backed Caller. A bot gets exactly one request per
// ply; there is deliberately no retry here.
type Client struct {
	http           *fasthttp.Client
	connectTimeout time.Duration
	readTimeout    time.Duration
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		http:           &fasthttp.Client{MaxConnsPerHost: 64},
		connectTimeout: 5 * time.Second,
		readTimeout:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.Dial = func(addr string) (net.Conn, error) {
		return fasthttp.DialTimeout(addr, c.connectTimeout)
	}
	return c
}

// RequestMove POSTs the move request to the bot endpoint with the match id
// header and, when the bot has a credential, an Authorization header.
func (c *Client) RequestMove(ctx context.Context, bot *domain.Bot, moveReq *botapi.MoveRequest) (*botapi.MoveResponse, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(bot.Endpoint)
	req.Header.SetContentType("application/json")
	req.Header.Set("X-Match-Id", moveReq.MatchID)
	if strings.TrimSpace(bot.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+bot.APIKey)
	}

	payload, err := json.Marshal(moveReq)
	if err != nil {
		return nil, fmt.Errorf("marshal move request: %w", err)
	}
	req.SetBody(payload)

	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		reason := classifyTransportError(err)
		obslog.L().Debug("bot_request_error",
			zap.String("bot_id", bot.ID),
			zap.String("match_id", moveReq.MatchID),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return nil, &CommFailure{Reason: reason, Err: err}
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return nil, &CommFailure{
			Reason: ReasonConnectionError,
			Err:    fmt.Errorf("bot endpoint status=%d body=%s", status, truncate(string(resp.Body()), 512)),
		}
	}

	var out botapi.MoveResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &CommFailure{
			Reason: ReasonConnectionError,
			Err:    fmt.Errorf("malformed bot response: %w", err),
		}
	}
	if strings.TrimSpace(out.Move) == "" {
		return nil, &CommFailure{Reason: ReasonInvalidResponse, Err: errors.New("empty move field")}
	}
	return &out, nil
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.readTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

// classifyTransportError maps dial and deadline failures to TIMEOUT and
// everything else transport-level to CONNECTION_ERROR. A connection that
// could not be established counts as TIMEOUT.
func classifyTransportError(err error) string {
	if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return ReasonTimeout
	}
	return ReasonConnectionError
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
