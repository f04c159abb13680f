package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soochol/minizaps/internal/zaps"
)

// Config is a connector's decoded configuration.
type Config interface {
	Validate() error
}

// TypedConnector is a connector whose configuration is decoded into C before
// it runs.
type TypedConnector[C Config] interface {
	Type() string
	Schema() map[string]any
	Run(ctx context.Context, cfg C, ectx zaps.ExecutionContext) zaps.ConnectorResult
}

// NewTyped adapts a TypedConnector to the untyped Connector interface.
// Configuration that fails to decode or validate becomes a failed result.
func NewTyped[C Config](impl TypedConnector[C]) Connector {
	return &typedConnector[C]{impl: impl}
}

type typedConnector[C Config] struct {
	impl TypedConnector[C]
}

func (t *typedConnector[C]) Type() string           { return t.impl.Type() }
func (t *typedConnector[C]) Schema() map[string]any { return t.impl.Schema() }

func (t *typedConnector[C]) Execute(ctx context.Context, config map[string]any, ectx zaps.ExecutionContext) zaps.ConnectorResult {
	cfg, err := decodeConfig[C](config)
	if err != nil {
		return zaps.Failed(fmt.Sprintf("%s failed: %v", displayName(t.impl.Type()), err))
	}
	return t.impl.Run(ctx, cfg, ectx)
}

func decodeConfig[C Config](config map[string]any) (C, error) {
	var cfg C
	if config == nil {
		config = map[string]any{}
	}
	raw, err := json.Marshal(config)
	if err != nil {
		return cfg, fmt.Errorf("encode config: %w", err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// displayName turns a type identifier into the label used in messages,
// e.g. "webhook" -> "Webhook".
func displayName(typ string) string {
	if typ == "" {
		return typ
	}
	return strings.ToUpper(typ[:1]) + typ[1:]
}
