package plugin

import (
	"context"

	"github.com/bwmarrin/snowflake"

	"github.com/smallbiznis/paycore/internal/payment/domain"
)

// NoopName is the registry key of the built-in gateway-less plugin.
const NoopName = "noop"

// Noop is a gateway plugin that never talks to anyone. Every call reports
// UNDEFINED, so transactions routed through it land in UNKNOWN and stay
// visible to reconciliation. Useful for wiring a deployment before a real
// gateway exists.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) Name() string { return NoopName }

func (*Noop) Execute(_ context.Context, _ domain.ExecuteRequest) (*domain.PluginOutcome, error) {
	return &domain.PluginOutcome{Status: domain.PluginStatusUndefined}, nil
}

func (*Noop) QueryStatus(_ context.Context, _, _, _ snowflake.ID) (*domain.PluginOutcome, error) {
	return &domain.PluginOutcome{Status: domain.PluginStatusUndefined}, nil
}
