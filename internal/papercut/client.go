package papercut

import (
	"context"
	"fmt"
	"time"

	"github.com/isometry/papercut-seeder/internal/logging"
	"github.com/isometry/papercut-seeder/internal/pagination"
	"github.com/isometry/papercut-seeder/internal/retry"
)

// CallObserver is notified of the outcome of every remote call attempt
// sequence. Implemented by metrics.Recorder.
type CallObserver interface {
	ObserveRemoteCall(method string, duration time.Duration, err error)
}

// Client is the retry-wrapped facade over the administrative API and the only
// component that talks to the network.
type Client struct {
	caller   Caller
	token    string
	executor *retry.Executor
	logger   logging.Logger
	observer CallObserver
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithLogger sets the logger used by the client.
func WithLogger(l logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logging.OrNop(l)
	}
}

// WithObserver registers a call observer.
func WithObserver(o CallObserver) ClientOption {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient creates a client sending token as the first argument of every call.
func NewClient(caller Caller, token string, executor *retry.Executor, opts ...ClientOption) (*Client, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller cannot be nil")
	}
	if executor == nil {
		return nil, fmt.Errorf("retry executor cannot be nil")
	}
	if token == "" {
		return nil, fmt.Errorf("auth token cannot be empty")
	}

	c := &Client{
		caller:   caller,
		token:    token,
		executor: executor,
		logger:   logging.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewClientFromConfig wires a Client over an XML-RPC Transport.
func NewClientFromConfig(config *ConnectionConfig, executor *retry.Executor, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection config: %w", err)
	}
	return NewClient(NewTransport(config), config.AuthToken, executor, opts...)
}

var _ Directory = (*Client)(nil)

// ListAccounts returns the user logins in the given window.
func (c *Client) ListAccounts(ctx context.Context, window pagination.Window) ([]string, error) {
	return c.listWindow(ctx, "list_accounts", MethodListUserAccounts, window)
}

// ListPrinters returns the printer names in the given window, in
// "server\printer" form.
func (c *Client) ListPrinters(ctx context.Context, window pagination.Window) ([]string, error) {
	return c.listWindow(ctx, "list_printers", MethodListPrinters, window)
}

// ListSharedAccounts returns the shared account names in the given window.
func (c *Client) ListSharedAccounts(ctx context.Context, window pagination.Window) ([]string, error) {
	return c.listWindow(ctx, "list_shared_accounts", MethodListSharedAccounts, window)
}

func (c *Client) listWindow(ctx context.Context, operation, method string, window pagination.Window) ([]string, error) {
	if window.Offset < 0 || window.Limit <= 0 {
		return nil, fmt.Errorf("%s: invalid window offset=%d limit=%d", operation, window.Offset, window.Limit)
	}

	items, err := retry.Do(ctx, c.executor, operation, func(ctx context.Context) ([]string, error) {
		var reply []string
		if err := c.call(ctx, operation, method, []any{c.token, window.Offset, window.Limit}, &reply); err != nil {
			return nil, err
		}
		return reply, nil
	})
	if err != nil {
		c.logger.Error("Listing failed", map[string]any{
			"operation": operation,
			"offset":    window.Offset,
			"limit":     window.Limit,
			"error":     err.Error(),
		})
		return nil, err
	}

	return items, nil
}

// CreateAccount creates an account with the given login. It fails with a
// conflict error when the login already exists.
func (c *Client) CreateAccount(ctx context.Context, login string) error {
	if login == "" {
		return fmt.Errorf("create_account: login cannot be empty")
	}

	return logging.LogOperation(c.logger, "create_account", map[string]any{"login": login}, func() error {
		err := c.executor.Do(ctx, "create_account", func(ctx context.Context) error {
			var reply any
			return c.call(ctx, "create_account", MethodAddNewUser, []any{c.token, login}, &reply)
		})
		return withLogin(err, login)
	})
}

// SetAccountProperties applies the batch in one call. The remote applies the
// whole batch or none of it, so after a failure the account's property state
// is unknown.
func (c *Client) SetAccountProperties(ctx context.Context, login string, batch PropertyBatch) error {
	if login == "" {
		return fmt.Errorf("set_properties: login cannot be empty")
	}
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("set_properties for %s: %w", login, err)
	}

	c.logger.Debug("Setting account properties", map[string]any{
		"login":      login,
		"properties": batch.Names(),
	})

	err := c.executor.Do(ctx, "set_properties", func(ctx context.Context) error {
		var reply any
		return c.call(ctx, "set_properties", MethodSetUserProperties, []any{c.token, login, batch.wire()}, &reply)
	})
	if err != nil {
		c.logger.Warn("Property state for account is now indeterminate", map[string]any{
			"login":      login,
			"properties": batch.Names(),
			"error":      err.Error(),
		})
		return withLogin(err, login)
	}

	return nil
}

// SubmitJobRecord hands a raw job log line to the server.
func (c *Client) SubmitJobRecord(ctx context.Context, record string) error {
	if record == "" {
		return fmt.Errorf("submit_job: record cannot be empty")
	}

	return c.executor.Do(ctx, "submit_job", func(ctx context.Context) error {
		var reply any
		return c.call(ctx, "submit_job", MethodProcessJob, []any{c.token, record}, &reply)
	})
}

func (c *Client) call(ctx context.Context, operation, method string, args []any, reply any) error {
	start := time.Now()

	c.logger.Trace("Calling remote method", map[string]any{
		"operation": operation,
		"method":    method,
	})

	err := WrapError(operation, c.caller.Call(ctx, method, args, reply))

	if c.observer != nil {
		c.observer.ObserveRemoteCall(method, time.Since(start), err)
	}

	return err
}
