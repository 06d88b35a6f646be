package register

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// coreDNSRegistrar publishes a node's address as a CoreDNS etcd-plugin
// record (https://coredns.io/plugins/etcd/), leased so a crashed node's
// entry expires instead of lingering as a dead seed.
type coreDNSRegistrar struct {
	client   *clientv3.Client
	basePath string
	domain   string
	ttl      int64
	leaseID  clientv3.LeaseID
}

// newCoreDNSRegistrar dials the given etcd endpoints and returns a
// registrar that writes records under basePath for domain.
func newCoreDNSRegistrar(endpoints []string, basePath, domain string, ttl int64) (*coreDNSRegistrar, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("register: dial etcd: %w", err)
	}

	return &coreDNSRegistrar{
		client:   cli,
		basePath: strings.TrimSuffix(basePath, "/"),
		domain:   strings.TrimSuffix(domain, "."),
		ttl:      ttl,
	}, nil
}

// coreDNSRecord is the etcd-plugin JSON value for one SRV-style entry.
type coreDNSRecord struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Priority int    `json:"priority"`
	Weight   int    `json:"weight"`
	TTL      int64  `json:"ttl,omitempty"`
}

// key builds the etcd path for nodeID under this registrar's SRV service
// name, "_ring._tcp.{domain}" — the CoreDNS etcd-plugin convention for a
// DNS-SD service record.
func (r *coreDNSRegistrar) key(nodeID string) string {
	return fmt.Sprintf("%s/%s/_tcp/_ring/%s", r.basePath, r.domain, nodeID)
}

func (r *coreDNSRegistrar) RegisterNode(ctx context.Context, nodeID, targetHost string, port int) error {
	rec := coreDNSRecord{
		Host:     targetHost,
		Port:     port,
		Priority: 10,
		Weight:   100,
		TTL:      r.ttl,
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("register: marshal coredns record: %w", err)
	}

	lease, err := r.client.Grant(ctx, r.ttl)
	if err != nil {
		return fmt.Errorf("register: grant etcd lease: %w", err)
	}
	r.leaseID = lease.ID

	if _, err := r.client.Put(ctx, r.key(nodeID), string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("register: put coredns record: %w", err)
	}
	return nil
}

func (r *coreDNSRegistrar) DeregisterNode(ctx context.Context, nodeID, targetHost string, port int) error {
	_, err := r.client.Delete(ctx, r.key(nodeID))
	if err != nil {
		return fmt.Errorf("register: delete coredns record: %w", err)
	}
	return nil
}

// RenewNode keeps the lease backing nodeID's record alive; called
// periodically so a live node's entry does not expire under its own TTL.
func (r *coreDNSRegistrar) RenewNode(ctx context.Context, nodeID, targetHost string, port int) error {
	if r.leaseID == 0 {
		return fmt.Errorf("register: no active lease for %s, call RegisterNode first", nodeID)
	}
	_, err := r.client.KeepAliveOnce(ctx, r.leaseID)
	if err != nil {
		return fmt.Errorf("register: renew coredns lease for %s: %w", nodeID, err)
	}
	return nil
}

func (r *coreDNSRegistrar) Close() error {
	return r.client.Close()
}
