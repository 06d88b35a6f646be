package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"

	"chordring/internal/config"
	"chordring/internal/logger"
)

// ResolveBootstrap resolves the seed peers a node should try to join into a
// list of "host:port" addresses.
//
//   - mode=static: returns the configured peer list verbatim.
//   - mode=dns: resolves peers via DNS, either SRV or plain A/AAAA.
//   - mode=init: no seed; the caller starts a solo ring.
//
// A DNS lookup that fails or returns no usable records yields an empty
// slice rather than an error — the caller falls back to starting solo.
func ResolveBootstrap(cfg config.BootstrapConfig, lgr logger.Logger) ([]string, error) {
	switch cfg.Mode {
	case "static":
		return cfg.Peers, nil
	case "dns":
		return resolveDNS(cfg, lgr)
	case "init":
		return nil, nil
	default:
		return nil, fmt.Errorf("bootstrap: unsupported mode %q", cfg.Mode)
	}
}

// dnsResolver bundles the exchange client and the server it talks to, so
// the SRV and A/AAAA paths below share one dial target.
type dnsResolver struct {
	client *dns.Client
	server string
}

func newDNSResolver(cfg config.BootstrapConfig) *dnsResolver {
	server := cfg.Resolver
	switch {
	case server == "":
		server = "8.8.8.8:53"
	case !strings.Contains(server, ":"):
		server += ":53"
	}
	return &dnsResolver{client: &dns.Client{Timeout: 2 * time.Second}, server: server}
}

func (r *dnsResolver) exchange(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	in, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	return in, err
}

func resolveDNS(cfg config.BootstrapConfig, lgr logger.Logger) ([]string, error) {
	resolver := newDNSResolver(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if cfg.SRV {
		return resolveSRV(ctx, resolver, cfg, lgr)
	}
	return resolveHost(ctx, resolver, cfg, lgr)
}

// resolveSRV queries the "_service._proto.name" SRV record and resolves
// each target to an address, preferring A/AAAA glue already present in the
// response's Additional section before issuing a follow-up query.
func resolveSRV(ctx context.Context, resolver *dnsResolver, cfg config.BootstrapConfig, lgr logger.Logger) ([]string, error) {
	qname := fmt.Sprintf("_%s._%s.%s", cfg.Service, cfg.Proto, cfg.DNSName)
	in, err := resolver.exchange(ctx, qname, dns.TypeSRV)
	if err != nil {
		lgr.Warn("bootstrap: SRV lookup failed", logger.F("qname", qname), logger.F("err", err))
		return nil, nil
	}
	if len(in.Answer) == 0 {
		lgr.Warn("bootstrap: SRV lookup returned no answers", logger.F("qname", qname))
		return nil, nil
	}

	glue := glueAddresses(in.Extra)

	var out []string
	for _, ans := range in.Answer {
		srv, ok := ans.(*dns.SRV)
		if !ok {
			continue
		}
		target := strings.TrimSuffix(srv.Target, ".")
		ips := glue[target]
		if len(ips) == 0 {
			ips = resolveTargetAddrs(ctx, resolver, target)
		}
		for _, ip := range ips {
			out = append(out, joinHostPort(ip, srv.Port))
		}
	}
	return out, nil
}

// glueAddresses indexes the A/AAAA records found in an SRV response's
// Additional section by owner name, sparing a follow-up query for targets
// the authoritative server already resolved inline.
func glueAddresses(extra []dns.RR) map[string][]string {
	out := map[string][]string{}
	for _, rr := range extra {
		switch a := rr.(type) {
		case *dns.A:
			name := strings.TrimSuffix(a.Hdr.Name, ".")
			out[name] = append(out[name], a.A.String())
		case *dns.AAAA:
			name := strings.TrimSuffix(a.Hdr.Name, ".")
			out[name] = append(out[name], a.AAAA.String())
		}
	}
	return out
}

// resolveTargetAddrs queries A then AAAA for a bare hostname, used when an
// SRV target wasn't already resolved via glue records.
func resolveTargetAddrs(ctx context.Context, resolver *dnsResolver, target string) []string {
	var ips []string
	if in, err := resolver.exchange(ctx, target, dns.TypeA); err == nil {
		for _, ans := range in.Answer {
			if a, ok := ans.(*dns.A); ok {
				ips = append(ips, a.A.String())
			}
		}
	}
	if in, err := resolver.exchange(ctx, target, dns.TypeAAAA); err == nil {
		for _, ans := range in.Answer {
			if aaaa, ok := ans.(*dns.AAAA); ok {
				ips = append(ips, aaaa.AAAA.String())
			}
		}
	}
	return ips
}

// resolveHost queries a plain A record for cfg.DNSName, falling back to
// AAAA if no IPv4 addresses come back, and pairs every result with the
// configured bootstrap port.
func resolveHost(ctx context.Context, resolver *dnsResolver, cfg config.BootstrapConfig, lgr logger.Logger) ([]string, error) {
	in, err := resolver.exchange(ctx, cfg.DNSName, dns.TypeA)
	if err != nil {
		lgr.Warn("bootstrap: A lookup failed", logger.F("qname", cfg.DNSName), logger.F("err", err))
		return nil, nil
	}

	var out []string
	for _, ans := range in.Answer {
		if a, ok := ans.(*dns.A); ok {
			out = append(out, joinHostPort(a.A.String(), cfg.Port))
		}
	}

	if len(out) == 0 {
		if in6, err := resolver.exchange(ctx, cfg.DNSName, dns.TypeAAAA); err == nil {
			for _, ans := range in6.Answer {
				if aaaa, ok := ans.(*dns.AAAA); ok {
					out = append(out, joinHostPort(aaaa.AAAA.String(), cfg.Port))
				}
			}
		}
	}

	if len(out) == 0 {
		lgr.Warn("bootstrap: host lookup returned no addresses", logger.F("qname", cfg.DNSName))
	}
	return out, nil
}

func joinHostPort(ip string, port int) string {
	if strings.Contains(ip, ":") {
		return fmt.Sprintf("[%s]:%d", ip, port)
	}
	return fmt.Sprintf("%s:%d", ip, port)
}
