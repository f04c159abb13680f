package connectors

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/soochol/minizaps/internal/zaps"
)

const defaultDelaySeconds = 1.0

// DelayConfig configures the delay connector.
type DelayConfig struct {
	Seconds *float64 `json:"seconds"`
}

func (c DelayConfig) Validate() error {
	if c.Seconds != nil && *c.Seconds < 0 {
		return errors.New("seconds must be >= 0")
	}
	return nil
}

func (c DelayConfig) duration() float64 {
	if c.Seconds == nil {
		return defaultDelaySeconds
	}
	return *c.Seconds
}

// Delay pauses the step for a fixed number of seconds.
type Delay struct{}

func NewDelay() Connector { return NewTyped[DelayConfig](&Delay{}) }

func (d *Delay) Type() string { return "delay" }

func (d *Delay) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"seconds": map[string]any{
				"type":        "number",
				"description": "Number of seconds to delay",
				"minimum":     0,
			},
		},
		"required": []any{"seconds"},
	}
}

func (d *Delay) Run(ctx context.Context, cfg DelayConfig, _ zaps.ExecutionContext) zaps.ConnectorResult {
	secs := cfg.duration()
	timer := time.NewTimer(time.Duration(secs * float64(time.Second)))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return zaps.Failed(fmt.Sprintf("Delay failed: %v", ctx.Err()))
	case <-timer.C:
	}
	return zaps.Succeeded(
		fmt.Sprintf("Delayed for %s seconds", strconv.FormatFloat(secs, 'f', -1, 64)),
		map[string]any{"delay_seconds": secs},
	)
}
