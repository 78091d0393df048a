package papercut

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/isometry/papercut-seeder/internal/pagination"
)

// XML-RPC method names of the administrative API.
const (
	MethodListUserAccounts   = "api.listUserAccounts"
	MethodListPrinters       = "api.listPrinters"
	MethodListSharedAccounts = "api.listSharedAccounts"
	MethodAddNewUser         = "api.addNewUser"
	MethodSetUserProperties  = "api.setUserProperties"
	MethodProcessJob         = "api.processJob"
)

// DefaultPath is the XML-RPC endpoint path served by the application server.
const DefaultPath = "/rpc/api/xmlrpc"

// ConnectionConfig holds the static connection parameters of a server.
type ConnectionConfig struct {
	Scheme    string        // http or https
	Host      string        // Application server host
	Port      int           // Application server port
	Path      string        // XML-RPC endpoint path
	AuthToken string        // Shared token sent as the first argument of every call
	Timeout   time.Duration // Per-call timeout, zero disables it
}

// Validate reports whether the configuration can address a server.
func (c *ConnectionConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("connection config cannot be nil")
	}
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Scheme != "" && c.Scheme != "http" && c.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", c.Scheme)
	}
	if c.AuthToken == "" {
		return fmt.Errorf("auth token is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

// Endpoint returns the full XML-RPC URL.
func (c *ConnectionConfig) Endpoint() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "http"
	}
	path := c.Path
	if path == "" {
		path = DefaultPath
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   path,
	}
	return u.String()
}

// Caller performs a single positional-argument remote call and decodes the
// result into reply.
type Caller interface {
	Call(ctx context.Context, method string, args []any, reply any) error
}

// Directory is the capability set consumers depend on.
type Directory interface {
	ListAccounts(ctx context.Context, window pagination.Window) ([]string, error)
	ListPrinters(ctx context.Context, window pagination.Window) ([]string, error)
	ListSharedAccounts(ctx context.Context, window pagination.Window) ([]string, error)
	CreateAccount(ctx context.Context, login string) error
	SetAccountProperties(ctx context.Context, login string, batch PropertyBatch) error
	SubmitJobRecord(ctx context.Context, record string) error
}

// User property names accepted by api.setUserProperties.
const (
	PropertyPrimaryCardNumber   = "primary-card-number"
	PropertySecondaryCardNumber = "secondary-card-number"
	PropertyDepartment          = "department"
	PropertyEmail               = "email"
	PropertyFullName            = "full-name"
	PropertyUsernameAlias       = "username-alias"
	PropertyNotes               = "notes"
	PropertyOffice              = "office"
	PropertyRestricted          = "restricted"
	PropertyHome                = "home"
	PropertyCardPIN             = "card-pin"
	PropertyBalance             = "balance"
	PropertyDisabledPrint       = "disabled-print"
	PropertyPrintStats          = "print-stats.job-count"
)

// AllowedUserProperties is the set of property names a batch may carry.
var AllowedUserProperties = map[string]bool{
	PropertyPrimaryCardNumber:   true,
	PropertySecondaryCardNumber: true,
	PropertyDepartment:          true,
	PropertyEmail:               true,
	PropertyFullName:            true,
	PropertyUsernameAlias:       true,
	PropertyNotes:               true,
	PropertyOffice:              true,
	PropertyRestricted:          true,
	PropertyHome:                true,
	PropertyCardPIN:             true,
	PropertyBalance:             true,
	PropertyDisabledPrint:       true,
	PropertyPrintStats:          true,
}

// PropertyAssignment is one (name, value) pair of a batch.
type PropertyAssignment struct {
	Name  string
	Value string
}

// PropertyBatch is an ordered set of assignments applied to one account in a
// single call. Order is preserved on the wire and in logs.
type PropertyBatch []PropertyAssignment

// Validate checks every name against AllowedUserProperties.
func (b PropertyBatch) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("property batch cannot be empty")
	}
	seen := make(map[string]bool, len(b))
	for i, p := range b {
		if !AllowedUserProperties[p.Name] {
			return fmt.Errorf("property %d: %q is not an allowed user property", i, p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("property %d: %q is assigned more than once", i, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Names returns the property names in batch order.
func (b PropertyBatch) Names() []string {
	names := make([]string, len(b))
	for i, p := range b {
		names[i] = p.Name
	}
	return names
}

// wire encodes the batch as an array of [name, value] arrays.
func (b PropertyBatch) wire() [][]string {
	pairs := make([][]string, len(b))
	for i, p := range b {
		pairs[i] = []string{p.Name, p.Value}
	}
	return pairs
}
