// Package control runs the interceptor chain wrapped around a payment
// operation: prior-call hooks before the gateway is touched, then exactly one
// of the success or failure notifications afterwards.
package control

import (
	"context"

	"go.uber.org/zap"

	"github.com/smallbiznis/paycore/internal/payment/domain"
)

// DefaultPluginMarker in a requested plugin list expands, in place, to the
// configured default chain. The marker never matches a registered plugin.
const DefaultPluginMarker = "__DEFAULT_CONTROL_PLUGIN__"

type chainState int

const (
	chainNotStarted chainState = iota
	chainPriorRun
	chainAborted
	chainNotified
)

// Runner builds chains from plugin names. It is shared and stateless; each
// operation gets its own Chain.
type Runner struct {
	registry *Registry
	defaults []string
	log      *zap.Logger
}

func NewRunner(registry *Registry, defaults []string, log *zap.Logger) *Runner {
	return &Runner{
		registry: registry,
		defaults: defaults,
		log:      log.Named("control"),
	}
}

// ResolveNames expands the requested plugin list. An empty request means the
// configured defaults; a marker entry expands to the defaults at its
// position.
func (r *Runner) ResolveNames(requested []string) []string {
	if len(requested) == 0 {
		return append([]string(nil), r.defaults...)
	}
	resolved := make([]string, 0, len(requested))
	for _, name := range requested {
		if name == DefaultPluginMarker {
			resolved = append(resolved, r.defaults...)
			continue
		}
		resolved = append(resolved, name)
	}
	return resolved
}

// NewChain resolves names against the registry and binds the chain to one
// call context. Unregistered names are skipped with a warning rather than
// failing the operation.
func (r *Runner) NewChain(requested []string, call *domain.ControlContext) *Chain {
	var plugins []domain.ControlPlugin
	for _, name := range r.ResolveNames(requested) {
		plugin, ok := r.registry.Get(name)
		if !ok {
			r.log.Warn("unknown control plugin, skipping", zap.String("plugin", name))
			continue
		}
		plugins = append(plugins, plugin)
	}
	return &Chain{runner: r, plugins: plugins, call: call}
}

// Chain is the per-operation interceptor sequence. visited counts the
// plugins whose PriorCall ran; only those receive notifications.
type Chain struct {
	runner  *Runner
	plugins []domain.ControlPlugin
	call    *domain.ControlContext
	state   chainState
	visited int
}

// Empty reports whether no plugin resolved; callers may skip the chain
// entirely.
func (c *Chain) Empty() bool { return len(c.plugins) == 0 }

// RunPrior invokes each plugin's prior-call hook in order, threading any
// adjustments into the call context so later plugins and the core operation
// see them. An abort stops the chain, notifies the visited prefix (the
// aborting plugin included) via OnFailureCall, and returns an *AbortError. A
// hook error is treated the same as an abort by that plugin.
func (c *Chain) RunPrior(ctx context.Context) error {
	if c.state != chainNotStarted {
		return nil
	}
	c.state = chainPriorRun

	for _, plugin := range c.plugins {
		c.visited++
		result, err := plugin.PriorCall(ctx, c.call)
		if err != nil {
			c.runner.log.Warn("control plugin prior call failed",
				zap.String("plugin", plugin.Name()), zap.Error(err))
			c.abort(ctx)
			return &domain.AbortError{PluginName: plugin.Name()}
		}
		if result == nil {
			continue
		}
		if result.Aborted {
			c.abort(ctx)
			return &domain.AbortError{PluginName: plugin.Name()}
		}
		c.applyAdjustments(result)
	}
	return nil
}

func (c *Chain) applyAdjustments(result *domain.PriorCallResult) {
	if result.AdjustedPaymentMethodID != nil {
		c.call.PaymentMethodID = *result.AdjustedPaymentMethodID
	}
	if result.AdjustedAmount != nil {
		c.call.Amount = *result.AdjustedAmount
	}
	if result.AdjustedCurrency != nil {
		c.call.Currency = *result.AdjustedCurrency
	}
	for k, v := range result.AdjustedProperties {
		if c.call.Properties == nil {
			c.call.Properties = map[string]string{}
		}
		c.call.Properties[k] = v
	}
}

func (c *Chain) abort(ctx context.Context) {
	c.state = chainAborted
	c.notify(ctx, false)
}

// NotifySuccess fires OnSuccessCall on the visited plugins in order. Hook
// errors are logged and swallowed: the payment outcome is already decided.
func (c *Chain) NotifySuccess(ctx context.Context) {
	if c.state != chainPriorRun {
		return
	}
	c.state = chainNotified
	c.notify(ctx, true)
}

// NotifyFailure fires OnFailureCall on the visited plugins in order.
func (c *Chain) NotifyFailure(ctx context.Context) {
	if c.state != chainPriorRun {
		return
	}
	c.state = chainNotified
	c.notify(ctx, false)
}

func (c *Chain) notify(ctx context.Context, success bool) {
	for i := 0; i < c.visited; i++ {
		plugin := c.plugins[i]
		var err error
		if success {
			err = plugin.OnSuccessCall(ctx, c.call)
		} else {
			err = plugin.OnFailureCall(ctx, c.call)
		}
		if err != nil {
			c.runner.log.Warn("control plugin notification failed",
				zap.String("plugin", plugin.Name()),
				zap.Bool("success", success),
				zap.Error(err))
		}
	}
}
