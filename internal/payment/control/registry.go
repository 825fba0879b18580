package control

import (
	"strings"

	"github.com/smallbiznis/paycore/internal/payment/domain"
)

// Registry holds the control plugins known to this deployment, keyed by
// lowercase name.
type Registry struct {
	plugins map[string]domain.ControlPlugin
}

func NewRegistry(plugins ...domain.ControlPlugin) *Registry {
	registry := &Registry{plugins: map[string]domain.ControlPlugin{}}
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

func (r *Registry) Get(name string) (domain.ControlPlugin, bool) {
	if r == nil {
		return nil, false
	}
	plugin, ok := r.plugins[strings.ToLower(strings.TrimSpace(name))]
	return plugin, ok
}
