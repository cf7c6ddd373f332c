package controller

import (
	"fmt"

	"github.com/controlfreak/cfkd/internal/domain"
)

// ServiceInfos returns a snapshot of every service, for the read-only
// observability surface (§4.6). Unlike Status/Desc it isn't shaped by the
// admin wire format - internal/httpapi marshals this directly to JSON.
func (c *Controller) ServiceInfos() []domain.ServiceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.ServiceInfo, 0, len(c.services))
	for _, s := range c.services {
		out = append(out, s.Info())
	}
	return out
}

// ServiceInfo returns one service's snapshot by name.
func (c *Controller) ServiceInfo(name string) (domain.ServiceInfo, error) {
	c.mu.RLock()
	s, ok := c.services[name]
	c.mu.RUnlock()
	if !ok {
		return domain.ServiceInfo{}, fmt.Errorf("%w: %q", domain.ErrServiceNotFound, name)
	}
	return s.Info(), nil
}

// ServiceConfig returns one service's current configuration by name.
func (c *Controller) ServiceConfig(name string) (domain.ServiceConfig, error) {
	c.mu.RLock()
	s, ok := c.services[name]
	c.mu.RUnlock()
	if !ok {
		return domain.ServiceConfig{}, fmt.Errorf("%w: %q", domain.ErrServiceNotFound, name)
	}
	return s.Config(), nil
}

// ProxyInfos returns a snapshot of every proxy.
func (c *Controller) ProxyInfos() []domain.ProxyInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.ProxyInfo, 0, len(c.proxies))
	for _, p := range c.proxies {
		out = append(out, p.Info())
	}
	return out
}
