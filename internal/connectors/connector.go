// Package connectors provides the pluggable actions a workflow step can run.
package connectors

import (
	"context"
	"errors"

	"github.com/soochol/minizaps/internal/zaps"
)

// ErrUnknownConnector is returned when a step names an unregistered type.
var ErrUnknownConnector = errors.New("unknown connector type")

// Connector performs one kind of action for a workflow step.
//
// Execute reports every outcome through the returned result; failures are
// results with Success=false, never panics. The context carries the step
// timeout, if any.
type Connector interface {
	Type() string
	// Schema describes the accepted configuration as a JSON-schema object.
	Schema() map[string]any
	Execute(ctx context.Context, config map[string]any, ectx zaps.ExecutionContext) zaps.ConnectorResult
}
