package register

import (
	"context"
	"fmt"

	"chordring/internal/config"
)

// NewRegistrar builds the self-registration backend named by cfg.Type,
// used to publish this node's address so it can serve as a seed for others.
func NewRegistrar(ctx context.Context, cfg config.RegisterConfig) (Registrar, error) {
	switch cfg.Type {
	case "route53":
		return newRoute53Registrar(ctx, cfg.Route53.HostedZoneID, cfg.Route53.DomainSuffix, cfg.TTL)

	case "coredns":
		return newCoreDNSRegistrar(cfg.CoreDNS.EtcdEndpoints, cfg.CoreDNS.BasePath, cfg.CoreDNS.Domain, cfg.TTL)

	default:
		return nil, fmt.Errorf("register: unsupported registrar type %q", cfg.Type)
	}
}
