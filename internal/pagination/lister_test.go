package pagination

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backing serves windows over a fixed slice and counts fetches.
type backing struct {
	items []string
	calls int
}

func newBacking(total int) *backing {
	items := make([]string, total)
	for i := range items {
		items[i] = fmt.Sprintf("user-%04d", i)
	}
	return &backing{items: items}
}

func (b *backing) fetch(_ context.Context, w Window) ([]string, error) {
	b.calls++
	if w.Offset >= len(b.items) {
		return nil, nil
	}
	end := min(w.Offset+w.Limit, len(b.items))
	return b.items[w.Offset:end], nil
}

func TestLister_FetchCountBounds(t *testing.T) {
	for _, limit := range []int{1, 2, 3, 7, 10} {
		for _, total := range []int{0, 1, 2, 6, 7, 9, 10, 11, 20, 23} {
			t.Run(fmt.Sprintf("total=%d/limit=%d", total, limit), func(t *testing.T) {
				b := newBacking(total)
				l := NewLister[string](limit)

				got, err := Collect(l.Enumerate(t.Context(), "accounts", b.fetch))
				require.NoError(t, err)

				assert.Equal(t, b.items, got)
				assert.Len(t, got, total)
				assert.LessOrEqual(t, b.calls, total/limit+1)
				assert.GreaterOrEqual(t, b.calls, (total+limit-1)/limit)
			})
		}
	}
}

func TestLister_PageSizeClamped(t *testing.T) {
	assert.Equal(t, 1, NewLister[string](0).PageSize())
	assert.Equal(t, 1, NewLister[string](-5).PageSize())
	assert.Equal(t, 250, NewLister[string](250).PageSize())
	assert.Equal(t, MaxPageSize, NewLister[string](50_000).PageSize())
}

func TestLister_OffsetAdvancesByReturnedCount(t *testing.T) {
	var offsets []int
	fetch := func(_ context.Context, w Window) ([]string, error) {
		offsets = append(offsets, w.Offset)
		assert.Equal(t, 3, w.Limit)
		switch w.Offset {
		case 0:
			return []string{"a", "b", "c"}, nil
		case 3:
			return []string{"d", "e", "f"}, nil
		default:
			return []string{"g"}, nil
		}
	}

	got, err := Collect(NewLister[string](3).Enumerate(t.Context(), "accounts", fetch))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g"}, got)
	assert.Equal(t, []int{0, 3, 6}, offsets)
}

func TestLister_RepeatedFullPageIsProtocolViolation(t *testing.T) {
	calls := 0
	fetch := func(_ context.Context, _ Window) ([]string, error) {
		calls++
		return []string{"a", "b"}, nil
	}

	got, err := Collect(NewLister[string](2).Enumerate(t.Context(), "accounts", fetch))
	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, 2, calls)

	var violation *ProtocolViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, 2, violation.Window.Offset)
}

func TestLister_OversizedPageIsProtocolViolation(t *testing.T) {
	fetch := func(_ context.Context, _ Window) ([]string, error) {
		return []string{"a", "b", "c"}, nil
	}

	_, err := Collect(NewLister[string](2).Enumerate(t.Context(), "printers", fetch))
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestLister_MaxPages(t *testing.T) {
	n := 0
	fetch := func(_ context.Context, w Window) ([]string, error) {
		n++
		return []string{fmt.Sprint(n)}, nil
	}

	_, err := Collect(NewLister[string](1, WithMaxPages(5)).Enumerate(t.Context(), "accounts", fetch))
	require.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, 5, n)
}

func TestLister_FetchErrorEndsSequence(t *testing.T) {
	boom := errors.New("server unreachable")
	fetch := func(_ context.Context, w Window) ([]string, error) {
		if w.Offset > 0 {
			return nil, boom
		}
		return []string{"a", "b"}, nil
	}

	var seen []string
	var lastErr error
	for item, err := range NewLister[string](2).Enumerate(t.Context(), "accounts", fetch) {
		if err != nil {
			lastErr = err
			continue
		}
		seen = append(seen, item)
	}

	assert.Equal(t, []string{"a", "b"}, seen)
	assert.ErrorIs(t, lastErr, boom)

	got, err := Collect(NewLister[string](2).Enumerate(t.Context(), "accounts", fetch))
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, got, "partial results are discarded")
}

func TestLister_CancellationStopsEnumeration(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	b := newBacking(10)
	fetch := func(ctx context.Context, w Window) ([]string, error) {
		page, err := b.fetch(ctx, w)
		if w.Offset == 2 {
			cancel()
		}
		return page, err
	}

	got, err := Collect(NewLister[string](2).Enumerate(ctx, "accounts", fetch))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, got)
	assert.Equal(t, 2, b.calls)
}

func TestLister_SequenceIsRestartable(t *testing.T) {
	b := newBacking(5)
	seq := NewLister[string](2).Enumerate(t.Context(), "accounts", b.fetch)

	first, err := Collect(seq)
	require.NoError(t, err)
	second, err := Collect(seq)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 6, b.calls)
}

func TestLister_EarlyBreakStopsFetching(t *testing.T) {
	b := newBacking(100)
	for item, err := range NewLister[string](10).Enumerate(t.Context(), "accounts", b.fetch) {
		require.NoError(t, err)
		if item == "user-0004" {
			break
		}
	}
	assert.Equal(t, 1, b.calls)
}

func TestCollect_EmptyIsNotNil(t *testing.T) {
	got, err := Collect(NewLister[string](10).Enumerate(t.Context(), "accounts", newBacking(0).fetch))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
