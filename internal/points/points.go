// Package points abstracts the live point server the engine acts on:
// addressable values that can be read and written, and named methods that
// can be called on objects. Production deployments back this with an OPC UA
// session; tests and dry runs use the simulator.
package points

import (
	"context"

	"github.com/sequent-io/sequent/pkg/schema"
)

// Client is the engine's view of the point server. Implementations must be
// safe for concurrent use: parallel branches read and write points at the
// same time.
type Client interface {
	// ReadValue reads the current value of the point with the given identifier.
	ReadValue(ctx context.Context, identifier string) (any, error)

	// WriteValue writes a value to the point with the given identifier.
	// typeHint names the server datatype the value should be encoded as
	// ("Double", "Boolean", ...); empty lets the binding infer it from the
	// Go value. The simulator ignores it.
	WriteValue(ctx context.Context, identifier string, value any, typeHint string) error

	// CallMethod invokes a named method on the object with the given
	// identifier. args may be empty. Returns the method's output values.
	CallMethod(ctx context.Context, identifier, method string, args ...any) ([]any, error)
}

// NotFoundError builds the error returned when an identifier does not
// resolve to a point.
func NotFoundError(identifier string) *schema.SequenceError {
	return schema.NewErrorf(schema.ErrCodePoint, "point %q not found", identifier)
}
