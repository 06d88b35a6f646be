package config

import (
	"fmt"
	"net"
)

// pickIP chooses a suitable local IP address according to mode
// ("public" or "private").
func pickIP(mode string) (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if (iface.Flags&net.FlagUp) == 0 || (iface.Flags&net.FlagLoopback) != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			ip = ip.To4()
			if ip == nil {
				continue
			}

			if mode == "private" && isPrivateIP(ip) {
				return ip, nil
			}
			if mode == "public" && !isPrivateIP(ip) {
				return ip, nil
			}
		}
	}
	return nil, fmt.Errorf("no suitable %s interface found", mode)
}

func isPrivateIP(ip net.IP) bool {
	privateBlocks := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
	}
	for _, block := range privateBlocks {
		_, cidr, _ := net.ParseCIDR(block)
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// Listen opens the node's inbound TCP listener and derives the advertised
// "host:port" other peers should use to reach it. If Node.Host is empty,
// the advertised host is chosen from the local interfaces according to
// DHT.Mode ("public" picks a non-private address, "private" picks one
// inside an RFC1918 block).
func (cfg *Config) Listen() (net.Listener, string, error) {
	bind := cfg.Node.Bind
	if bind == "" {
		bind = "0.0.0.0"
	}

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bind, cfg.Node.Port))
	if err != nil {
		return nil, "", err
	}

	host := cfg.Node.Host
	if host == "" {
		ip, err := pickIP(cfg.DHT.Mode)
		if err != nil {
			_ = lis.Close()
			return nil, "", err
		}
		host = ip.String()
	} else {
		ip := net.ParseIP(host)
		if ip != nil {
			if cfg.DHT.Mode == "private" && !isPrivateIP(ip) {
				_ = lis.Close()
				return nil, "", fmt.Errorf("host %s is not private but dht.mode=private", host)
			}
			if cfg.DHT.Mode == "public" && isPrivateIP(ip) {
				_ = lis.Close()
				return nil, "", fmt.Errorf("host %s is private but dht.mode=public", host)
			}
		}
	}

	_, portStr, err := net.SplitHostPort(lis.Addr().String())
	if err != nil {
		_ = lis.Close()
		return nil, "", err
	}
	return lis, fmt.Sprintf("%s:%s", host, portStr), nil
}
