// Package pagination walks remote listing endpoints that only expose
// offset/limit windows.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/isometry/papercut-seeder/internal/logging"
)

// MaxPageSize is the largest window the remote API reliably serves.
const MaxPageSize = 1000

// ErrProtocolViolation matches any ProtocolViolationError.
var ErrProtocolViolation = errors.New("pagination protocol violation")

// Window is one page request.
type Window struct {
	Offset int
	Limit  int
}

// ProtocolViolationError reports a remote pager that does not honour the
// offset/limit contract.
type ProtocolViolationError struct {
	Window Window
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("pagination protocol violation at offset %d (limit %d): %s",
		e.Window.Offset, e.Window.Limit, e.Reason)
}

func (e *ProtocolViolationError) Is(target error) bool {
	return target == ErrProtocolViolation
}

// FetchFunc returns the items of one window. Implementations are expected to
// apply their own retry policy.
type FetchFunc[T any] func(ctx context.Context, window Window) ([]T, error)

// Lister enumerates a remote listing in fixed-size windows.
type Lister[T comparable] struct {
	pageSize int
	maxPages int
	logger   logging.Logger
}

// Option customises a Lister.
type Option func(*settings)

type settings struct {
	maxPages int
	logger   logging.Logger
}

// WithMaxPages aborts enumeration with a protocol violation once n pages have
// been fetched without reaching the end. Zero means no limit.
func WithMaxPages(n int) Option {
	return func(s *settings) {
		s.maxPages = n
	}
}

// WithLogger sets the logger used for page progress.
func WithLogger(l logging.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// NewLister returns a lister with the given window size, clamped to
// [1, MaxPageSize].
func NewLister[T comparable](pageSize int, opts ...Option) *Lister[T] {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}

	return &Lister[T]{
		pageSize: min(max(pageSize, 1), MaxPageSize),
		maxPages: max(s.maxPages, 0),
		logger:   logging.OrNop(s.logger),
	}
}

// PageSize returns the effective window size.
func (l *Lister[T]) PageSize() int {
	return l.pageSize
}

// Enumerate returns a lazy sequence over every remote item. Each range over
// the sequence starts again from offset 0. A non-nil error is always the last
// element yielded.
func (l *Lister[T]) Enumerate(ctx context.Context, name string, fetch FetchFunc[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		var previous []T

		start := time.Now()
		window := Window{Offset: 0, Limit: l.pageSize}
		pages := 0
		items := 0

		l.logger.Debug("Starting paged enumeration", map[string]any{
			"listing":   name,
			"page_size": l.pageSize,
		})

		for {
			if err := ctx.Err(); err != nil {
				l.logger.Warn("Paged enumeration cancelled by context", map[string]any{
					"listing":         name,
					"pages_completed": pages,
					"items_so_far":    items,
					"context_error":   err.Error(),
				})
				yield(zero, err)
				return
			}

			if l.maxPages > 0 && pages >= l.maxPages {
				yield(zero, &ProtocolViolationError{
					Window: window,
					Reason: fmt.Sprintf("exceeded maximum of %d pages", l.maxPages),
				})
				return
			}

			page, err := fetch(ctx, window)
			if err != nil {
				yield(zero, err)
				return
			}
			pages++

			l.logger.Trace("Fetched page", map[string]any{
				"listing":    name,
				"page":       pages,
				"offset":     window.Offset,
				"page_items": len(page),
			})

			if len(page) > window.Limit {
				yield(zero, &ProtocolViolationError{
					Window: window,
					Reason: fmt.Sprintf("page returned %d items for a limit of %d", len(page), window.Limit),
				})
				return
			}

			full := len(page) == window.Limit
			if full && previous != nil && slices.Equal(previous, page) {
				yield(zero, &ProtocolViolationError{
					Window: window,
					Reason: "remote returned the same full page twice without advancing",
				})
				return
			}

			for _, item := range page {
				if !yield(item, nil) {
					return
				}
			}
			items += len(page)

			if !full {
				break
			}

			previous = page
			window.Offset += len(page)
		}

		logging.LogPerformance(l.logger, "enumerate_"+name, time.Since(start), map[string]any{
			"pages": pages,
			"items": items,
		})
	}
}

// Collect drains a sequence. On error the partial result is discarded.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var items []T
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}
