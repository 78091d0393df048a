package papercut

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/kolo/xmlrpc"
)

// Transport issues XML-RPC calls over HTTP. It is safe for concurrent use.
type Transport struct {
	endpoint string
	timeout  time.Duration
	base     http.RoundTripper
}

// NewTransport creates a transport for the configured endpoint using a pooled
// HTTP transport.
func NewTransport(config *ConnectionConfig) *Transport {
	return NewTransportWithRoundTripper(config, cleanhttp.DefaultPooledTransport())
}

// NewTransportWithRoundTripper is NewTransport with a caller-supplied HTTP
// round tripper.
func NewTransportWithRoundTripper(config *ConnectionConfig, rt http.RoundTripper) *Transport {
	if rt == nil {
		rt = cleanhttp.DefaultPooledTransport()
	}
	return &Transport{
		endpoint: config.Endpoint(),
		timeout:  config.Timeout,
		base:     rt,
	}
}

// Endpoint returns the URL calls are sent to.
func (t *Transport) Endpoint() string {
	return t.endpoint
}

// Call sends one method call and decodes the response into reply.
//
// An XML-RPC client is created per call: a failed exchange shuts the
// underlying rpc.Client down for good, and the per-call round tripper carries
// the call's context onto the HTTP request.
func (t *Transport) Call(ctx context.Context, method string, args []any, reply any) error {
	callCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	client, err := xmlrpc.NewClient(t.endpoint, &contextRoundTripper{ctx: callCtx, base: t.base})
	if err != nil {
		return fmt.Errorf("failed to create xml-rpc client for %s: %w", t.endpoint, err)
	}
	defer client.Close()

	call := client.Go(method, args, reply, nil)

	select {
	case <-callCtx.Done():
		return t.contextError(ctx, method)
	case done := <-call.Done:
		if done.Error != nil && callCtx.Err() != nil {
			return t.contextError(ctx, method)
		}
		return done.Error
	}
}

func (t *Transport) contextError(parent context.Context, method string) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%s after %s: %w", method, t.timeout, ErrCallTimeout)
}

// contextRoundTripper binds outgoing requests to a call context and turns
// non-2xx responses into *StatusError.
type contextRoundTripper struct {
	ctx  context.Context
	base http.RoundTripper
}

func (rt *contextRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := rt.base.RoundTrip(req.WithContext(rt.ctx))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return resp, nil
}
