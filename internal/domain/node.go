package domain

import "fmt"

// NodeRef is the immutable identity of a ring participant: its network
// endpoint and the identifier derived from it. Two NodeRefs are equal when
// their host and port match; NodeRefs are cheap to copy and never mutated
// in place.
type NodeRef struct {
	Host string
	Port int
	ID   ID
}

// Addr returns the "host:port" dial string for this node.
func (n NodeRef) Addr() string {
	return fmt.Sprintf("%s:%d", n.Host, n.Port)
}

// IsZero reports whether n is the empty NodeRef (no host, no port).
func (n NodeRef) IsZero() bool {
	return n.Host == "" && n.Port == 0
}

// Equal reports whether two NodeRefs refer to the same endpoint.
func (n NodeRef) Equal(o NodeRef) bool {
	return n.Host == o.Host && n.Port == o.Port
}

// NewNodeRef builds a NodeRef for an endpoint, deriving its identifier from
// the given identifier space.
func NewNodeRef(sp Space, host string, port int) NodeRef {
	return NodeRef{
		Host: host,
		Port: port,
		ID:   sp.ComputeID(host, port),
	}
}
