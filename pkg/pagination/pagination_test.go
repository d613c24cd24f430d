package pagination

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
)

func numbers(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func newManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(opts...)
	require.NoError(t, err)
	return m
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, DefaultLimit, ClampLimit(-3))
	assert.Equal(t, 10, ClampLimit(10))
	assert.Equal(t, MaxLimit, ClampLimit(MaxLimit+1))
}

func TestPagesCoverEveryItemOnce(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		total, size int
	}{
		{0, 10}, {1, 10}, {10, 10}, {11, 10}, {95, 10}, {120, 50},
	} {
		t.Run(fmt.Sprintf("%d_by_%d", tc.total, tc.size), func(t *testing.T) {
			m := newManager(t, WithPageSize(tc.size))
			enum := SliceEnumerator(numbers(tc.total))

			var got []int
			res, err := FirstPage(ctx, m, "tools/list", enum)
			require.NoError(t, err)
			got = append(got, res.Items...)
			pages := 1
			for res.NextCursor != "" {
				res, err = NextPage(ctx, m, "tools/list", res.NextCursor, enum)
				require.NoError(t, err)
				got = append(got, res.Items...)
				pages++
			}

			if tc.total == 0 {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, numbers(tc.total), got)
			}
			wantPages := (tc.total + tc.size - 1) / tc.size
			if wantPages == 0 {
				wantPages = 1
			}
			assert.Equal(t, wantPages, pages)
		})
	}
}

func TestFirstPageOfEmptySetHasNoCursor(t *testing.T) {
	m := newManager(t)
	res, err := FirstPage(context.Background(), m, "prompts/list", SliceEnumerator([]string{}))
	require.NoError(t, err)
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.NextCursor)
}

func TestCursorIsBoundToOperation(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, WithPageSize(2))

	res, err := FirstPage(ctx, m, "tools/list", SliceEnumerator(numbers(5)))
	require.NoError(t, err)
	require.NotEmpty(t, res.NextCursor)

	_, err = NextPage(ctx, m, "prompts/list", res.NextCursor, SliceEnumerator(numbers(5)))
	require.Error(t, err)
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeInvalidParams))
	assert.True(t, mcperrors.IsCategory(err, mcperrors.CategoryValidation))
}

func TestTamperedCursorIsRejected(t *testing.T) {
	m := newManager(t)
	cursor, err := m.Encode("resources/list", 50)
	require.NoError(t, err)

	offset, err := m.Decode("resources/list", cursor)
	require.NoError(t, err)
	assert.Equal(t, 50, offset)

	parts := strings.Split(cursor, ".")
	require.Len(t, parts, 3)
	forged := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	for _, bad := range []string{forged, "garbage", cursor + "x"} {
		_, err := m.Decode("resources/list", bad)
		assert.True(t, mcperrors.IsCode(err, mcperrors.CodeInvalidParams), "cursor %q", bad)
	}
}

func TestCursorFromAnotherKeyIsRejected(t *testing.T) {
	a := newManager(t, WithSecret([]byte("one")))
	b := newManager(t, WithSecret([]byte("two")))

	cursor, err := a.Encode("tools/list", 10)
	require.NoError(t, err)
	_, err = b.Decode("tools/list", cursor)
	assert.Error(t, err)

	same := newManager(t, WithSecret([]byte("one")))
	offset, err := same.Decode("tools/list", cursor)
	require.NoError(t, err)
	assert.Equal(t, 10, offset)
}

func TestExpiredCursor(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	m := newManager(t, WithTTL(time.Minute), WithClock(clock))
	cursor, err := m.Encode("tools/list", 1)
	require.NoError(t, err)

	offset, err := m.Decode("tools/list", cursor)
	require.NoError(t, err)
	assert.Equal(t, 1, offset)

	now = now.Add(2 * time.Minute)
	_, err = m.Decode("tools/list", cursor)
	require.Error(t, err)
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeInvalidParams))
}

func TestNonPositiveTTLNeverExpires(t *testing.T) {
	now := time.Now()
	m := newManager(t, WithTTL(-time.Minute), WithClock(func() time.Time { return now }))
	cursor, err := m.Encode("tools/list", 4)
	require.NoError(t, err)

	now = now.Add(24 * time.Hour)
	offset, err := m.Decode("tools/list", cursor)
	require.NoError(t, err)
	assert.Equal(t, 4, offset)
}

func TestPageDispatchesOnCursor(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, WithPageSize(3))
	enum := SliceEnumerator(numbers(7))

	first, err := Page(ctx, m, "tools/list", "", enum)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, first.Items)

	second, err := Page(ctx, m, "tools/list", first.NextCursor, enum)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5}, second.Items)
}

func TestEnumeratorErrorPropagates(t *testing.T) {
	m := newManager(t)
	boom := errors.New("backend down")
	_, err := FirstPage(context.Background(), m, "tools/list", func(context.Context, int, int) ([]int, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestCollect(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, WithPageSize(4))
	enum := SliceEnumerator(numbers(10))

	calls := 0
	all, err := Collect(ctx, func(ctx context.Context, cursor string) ([]int, string, error) {
		calls++
		res, err := Page(ctx, m, "tools/list", cursor, enum)
		if err != nil {
			return nil, "", err
		}
		return res.Items, res.NextCursor, nil
	})
	require.NoError(t, err)
	assert.Equal(t, numbers(10), all)
	assert.Equal(t, 3, calls)
}

func TestCollectStopsOnRepeatedCursor(t *testing.T) {
	_, err := Collect(context.Background(), func(context.Context, string) ([]int, string, error) {
		return []int{1}, "same", nil
	})
	assert.ErrorIs(t, err, ErrRepeatedCursor)
}

func TestCollectorUpdate(t *testing.T) {
	c := NewCollector()
	assert.True(t, c.HasMore)

	require.NoError(t, c.Update("a"))
	assert.True(t, c.HasMore)
	assert.Equal(t, "a", c.NextCursor)

	require.NoError(t, c.Update(""))
	assert.False(t, c.HasMore)
	assert.Equal(t, 2, c.Pages)
}
