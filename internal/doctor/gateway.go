package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/rileyhilliard/dozer/internal/api"
	"github.com/rileyhilliard/dozer/internal/errors"
)

// HealthClient fetches the gateway's /health. *client.Client satisfies it.
type HealthClient interface {
	Server() string
	Health(ctx context.Context) (api.HealthView, error)
}

// GatewayCheck verifies a gateway answers /health, and that it manages the
// same target as the local config.
type GatewayCheck struct {
	Client HealthClient
	// Address is the locally configured target; empty skips the comparison.
	Address string
}

func (c *GatewayCheck) Name() string     { return "gateway" }
func (c *GatewayCheck) Category() string { return CategoryGateway }

func (c *GatewayCheck) Run(ctx context.Context) CheckResult {
	h, err := c.Client.Health(ctx)
	if err != nil {
		return warnResult(c, fmt.Sprintf("No gateway at %s: %s", c.Client.Server(), errors.Flatten(err)),
			"Start one with 'dozer serve', or point --server at it")
	}

	uptime := time.Duration(h.Uptime * float64(time.Second)).Round(time.Second)
	msg := fmt.Sprintf("Gateway %s at %s, up %s", h.Version, c.Client.Server(), uptime)

	if remote := gatewayTarget(h); c.Address != "" && remote != "" && remote != c.Address {
		return warnResult(c, msg,
			fmt.Sprintf("The gateway manages %s but this config targets %s", remote, c.Address))
	}
	return passResult(c, msg)
}

func gatewayTarget(h api.HealthView) string {
	ts, ok := h.Config["targetServer"].(map[string]interface{})
	if !ok {
		return ""
	}
	ip, _ := ts["ip"].(string)
	return ip
}
