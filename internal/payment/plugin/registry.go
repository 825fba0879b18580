// Package plugin hosts the gateway plugin registry and the built-in plugins.
package plugin

import (
	"strings"

	"github.com/smallbiznis/paycore/internal/payment/domain"
)

// Registry maps provider names to gateway plugins, keyed by lowercase name.
type Registry struct {
	plugins map[string]domain.GatewayPlugin
}

func NewRegistry(plugins ...domain.GatewayPlugin) *Registry {
	registry := &Registry{plugins: map[string]domain.GatewayPlugin{}}
	for _, plugin := range plugins {
		if plugin == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(plugin.Name()))
		if name == "" {
			continue
		}
		registry.plugins[name] = plugin
	}
	return registry
}

func (r *Registry) Get(name string) (domain.GatewayPlugin, error) {
	if r == nil {
		return nil, domain.ErrPluginNotFound
	}
	plugin, ok := r.plugins[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, domain.ErrPluginNotFound
	}
	return plugin, nil
}

func (r *Registry) Exists(name string) bool {
	_, err := r.Get(name)
	return err == nil
}
