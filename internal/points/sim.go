package points

import (
	"context"
	"sync"

	"github.com/sequent-io/sequent/pkg/schema"
)

// MethodFunc is a simulated method body.
type MethodFunc func(ctx context.Context, args ...any) ([]any, error)

// SimClient is an in-memory point server. Points are created on first write
// unless the client is seeded; methods must be registered explicitly.
type SimClient struct {
	mu      sync.RWMutex
	values  map[string]any
	methods map[string]MethodFunc

	// Strict rejects reads of unknown identifiers instead of returning nil.
	Strict bool
}

// NewSimClient creates an empty simulator.
func NewSimClient() *SimClient {
	return &SimClient{
		values:  make(map[string]any),
		methods: make(map[string]MethodFunc),
	}
}

// Seed sets a point value without going through WriteValue.
func (c *SimClient) Seed(identifier string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[identifier] = value
}

// RegisterMethod installs a simulated method under identifier and name.
func (c *SimClient) RegisterMethod(identifier, method string, fn MethodFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methods[identifier+"#"+method] = fn
}

// ReadValue implements Client.
func (c *SimClient) ReadValue(ctx context.Context, identifier string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[identifier]
	if !ok && c.Strict {
		return nil, NotFoundError(identifier)
	}
	return v, nil
}

// WriteValue implements Client. The type hint is ignored: simulated points
// store whatever Go value they are given.
func (c *SimClient) WriteValue(ctx context.Context, identifier string, value any, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Strict {
		if _, ok := c.values[identifier]; !ok {
			return NotFoundError(identifier)
		}
	}
	c.values[identifier] = value
	return nil
}

// CallMethod implements Client.
func (c *SimClient) CallMethod(ctx context.Context, identifier, method string, args ...any) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	fn, ok := c.methods[identifier+"#"+method]
	c.mu.RUnlock()
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodePoint,
			"method %q not found on %q", method, identifier)
	}
	return fn(ctx, args...)
}

var _ Client = (*SimClient)(nil)
