package pagination

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
)

const (
	// DefaultLimit is the page size used when none is configured
	DefaultLimit = 50

	// MaxLimit is the largest page a Manager will serve
	MaxLimit = 200
)

// ErrRepeatedCursor is returned by a Collector when a server hands back a
// cursor it already returned, which would otherwise loop forever
var ErrRepeatedCursor = errors.New("pagination cursor repeated")

// Enumerator returns up to limit items starting at offset from a stable
// ordering. Returning fewer than limit items means the end was reached.
type Enumerator[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// Result is one page of items. An empty NextCursor means there is nothing
// after it.
type Result[T any] struct {
	Items      []T
	NextCursor string
}

// Manager mints and verifies cursors. A cursor is a signed token binding
// an operation name to an offset; it is rejected by any other operation
// and by any other Manager key.
type Manager struct {
	key    []byte
	limit  int
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// Option configures a Manager
type Option func(*Manager)

// WithSecret sets the signing key. Servers that must accept cursors across
// restarts need a stable secret; otherwise a random key is generated.
func WithSecret(secret []byte) Option {
	return func(m *Manager) {
		if len(secret) > 0 {
			m.key = append([]byte(nil), secret...)
		}
	}
}

// WithPageSize sets the page size, clamped to 1..MaxLimit
func WithPageSize(n int) Option {
	return func(m *Manager) {
		m.limit = ClampLimit(n)
	}
}

// WithTTL makes cursors expire d after they were minted. Zero or a
// negative d leaves cursors valid for the Manager's lifetime.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		m.ttl = d
	}
}

// WithClock replaces time.Now for minting and expiry checks
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a cursor manager
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{limit: DefaultLimit, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}

	if len(m.key) == 0 {
		m.key = make([]byte, 32)
		if _, err := rand.Read(m.key); err != nil {
			return nil, fmt.Errorf("failed to generate cursor key: %w", err)
		}
	}

	m.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	return m, nil
}

// PageSize returns the number of items per page
func (m *Manager) PageSize() int { return m.limit }

// ClampLimit applies the default and maximum page size to n
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}

type cursorClaims struct {
	Offset int `json:"off"`
	jwt.RegisteredClaims
}

// Encode mints a cursor for offset within operation
func (m *Manager) Encode(operation string, offset int) (string, error) {
	claims := cursorClaims{
		Offset:           offset,
		RegisteredClaims: jwt.RegisteredClaims{Subject: operation},
	}
	if m.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(m.now().Add(m.ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign cursor: %w", err)
	}
	return token, nil
}

// Decode verifies cursor for operation and returns its offset. Any
// failure is an invalid-cursor error.
func (m *Manager) Decode(operation, cursor string) (int, error) {
	var claims cursorClaims
	_, err := m.parser.ParseWithClaims(cursor, &claims, func(*jwt.Token) (interface{}, error) {
		return m.key, nil
	})
	if err != nil {
		return 0, mcperrors.InvalidCursor(operation, err)
	}
	if claims.Subject != operation {
		return 0, mcperrors.InvalidCursor(operation,
			fmt.Errorf("cursor was issued for %q", claims.Subject))
	}
	if claims.Offset < 0 {
		return 0, mcperrors.InvalidCursor(operation, fmt.Errorf("negative offset %d", claims.Offset))
	}
	return claims.Offset, nil
}

// FirstPage returns the first page of operation
func FirstPage[T any](ctx context.Context, m *Manager, operation string, enum Enumerator[T]) (*Result[T], error) {
	return pageAt(ctx, m, operation, 0, enum)
}

// NextPage returns the page a cursor points at
func NextPage[T any](ctx context.Context, m *Manager, operation, cursor string, enum Enumerator[T]) (*Result[T], error) {
	offset, err := m.Decode(operation, cursor)
	if err != nil {
		return nil, err
	}
	return pageAt(ctx, m, operation, offset, enum)
}

// Page is FirstPage for an empty cursor and NextPage otherwise
func Page[T any](ctx context.Context, m *Manager, operation, cursor string, enum Enumerator[T]) (*Result[T], error) {
	if cursor == "" {
		return FirstPage(ctx, m, operation, enum)
	}
	return NextPage(ctx, m, operation, cursor, enum)
}

func pageAt[T any](ctx context.Context, m *Manager, operation string, offset int, enum Enumerator[T]) (*Result[T], error) {
	// one extra item tells whether another page exists
	items, err := enum(ctx, offset, m.limit+1)
	if err != nil {
		return nil, err
	}

	res := &Result[T]{Items: items}
	if len(items) > m.limit {
		res.Items = items[:m.limit]
		next, err := m.Encode(operation, offset+m.limit)
		if err != nil {
			return nil, err
		}
		res.NextCursor = next
	}
	if res.Items == nil {
		res.Items = []T{}
	}
	return res, nil
}

// SliceEnumerator enumerates a snapshot of items
func SliceEnumerator[T any](items []T) Enumerator[T] {
	return func(_ context.Context, offset, limit int) ([]T, error) {
		if offset >= len(items) {
			return nil, nil
		}
		end := offset + limit
		if end > len(items) {
			end = len(items)
		}
		return items[offset:end], nil
	}
}

// Collector follows next cursors on the client side
type Collector struct {
	// NextCursor is the cursor for the next request, empty for the first
	NextCursor string
	// HasMore is false once the server returned no next cursor
	HasMore bool
	// Pages counts the pages seen so far
	Pages int

	seen map[string]struct{}
}

// NewCollector creates a Collector positioned before the first page
func NewCollector() *Collector {
	return &Collector{HasMore: true, seen: make(map[string]struct{})}
}

// Update records the next cursor of the page just received
func (c *Collector) Update(nextCursor string) error {
	c.Pages++
	c.NextCursor = nextCursor
	c.HasMore = nextCursor != ""
	if !c.HasMore {
		return nil
	}
	if _, dup := c.seen[nextCursor]; dup {
		c.HasMore = false
		return ErrRepeatedCursor
	}
	c.seen[nextCursor] = struct{}{}
	return nil
}

// Collect calls fetch with successive cursors until the last page and
// returns every item in order
func Collect[T any](ctx context.Context, fetch func(ctx context.Context, cursor string) ([]T, string, error)) ([]T, error) {
	var all []T
	c := NewCollector()
	for c.HasMore {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		items, next, err := fetch(ctx, c.NextCursor)
		if err != nil {
			return all, err
		}
		all = append(all, items...)
		if err := c.Update(next); err != nil {
			return all, err
		}
	}
	return all, nil
}
