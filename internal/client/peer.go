package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"chordring/internal/domain"
	"chordring/internal/logger"
	"chordring/internal/wire"
)

// GetSuccessor asks peer for its current successor (successors[0]).
func (p *Pool) GetSuccessor(ctx context.Context, peer domain.NodeRef) (domain.NodeRef, error) {
	var res wire.NodeResource
	if err := p.get(ctx, peer, "/dht/v1/successor", &res); err != nil {
		return domain.NodeRef{}, err
	}
	return wire.ToNodeRef(p.space, res)
}

// GetPredecessor asks peer for its current predecessor. Returns
// (nil, nil) if the peer reports it has none.
func (p *Pool) GetPredecessor(ctx context.Context, peer domain.NodeRef) (*domain.NodeRef, error) {
	var res wire.NodeResource
	err := p.get(ctx, peer, "/dht/v1/predecessor", &res)
	if errors.Is(err, ErrNoPredecessor) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	n, err := wire.ToNodeRef(p.space, res)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// FindSuccessor invokes findSuccessor(target, hops) on peer.
func (p *Pool) FindSuccessor(ctx context.Context, peer domain.NodeRef, target domain.ID, hops int) (int, domain.NodeRef, error) {
	path := fmt.Sprintf("/dht/v1/successor/%s?hops=%d", target.ToHexString(false), hops)
	var res wire.FindSuccessorResponse
	if err := p.get(ctx, peer, path, &res); err != nil {
		return 0, domain.NodeRef{}, err
	}
	n, err := wire.ToNodeRef(p.space, res.Successor)
	if err != nil {
		return 0, domain.NodeRef{}, err
	}
	return res.Hops, n, nil
}

// GetSuccessors fetches the peer's full successor cache.
func (p *Pool) GetSuccessors(ctx context.Context, peer domain.NodeRef) ([]*domain.NodeRef, error) {
	var res wire.SuccessorListResponse
	if err := p.get(ctx, peer, "/dht/v1/successors", &res); err != nil {
		return nil, err
	}
	out := make([]*domain.NodeRef, len(res.Successors))
	for i, r := range res.Successors {
		if r == nil {
			continue
		}
		n, err := wire.ToNodeRef(p.space, *r)
		if err != nil {
			return nil, err
		}
		out[i] = &n
	}
	return out, nil
}

// GetFingers fetches the peer's non-nil finger table entries, used by the
// operator console rather than by the core protocol.
func (p *Pool) GetFingers(ctx context.Context, peer domain.NodeRef) ([]*domain.NodeRef, error) {
	var res wire.FingerListResponse
	if err := p.get(ctx, peer, "/dht/v1/fingers", &res); err != nil {
		return nil, err
	}
	out := make([]*domain.NodeRef, 0, len(res.Fingers))
	for _, r := range res.Fingers {
		if r == nil {
			continue
		}
		n, err := wire.ToNodeRef(p.space, *r)
		if err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, nil
}

// Notify tells peer that self believes it may be its predecessor. One-way:
// failures are tolerated by callers.
func (p *Pool) Notify(ctx context.Context, peer domain.NodeRef, self domain.NodeRef) error {
	body := wire.FromNodeRef(self)
	return p.post(ctx, peer, "/dht/v1/notify", body, nil)
}

// Ping is a cheap liveness probe used by closestPrecedingFinger and the
// stabilizer tasks.
func (p *Pool) Ping(ctx context.Context, peer domain.NodeRef) error {
	return p.get(ctx, peer, "/dht/v1/ping", nil)
}

func (p *Pool) get(ctx context.Context, peer domain.NodeRef, path string, out any) error {
	return p.do(ctx, http.MethodGet, peer, path, nil, out)
}

func (p *Pool) post(ctx context.Context, peer domain.NodeRef, path string, body, out any) error {
	return p.do(ctx, http.MethodPost, peer, path, body, out)
}

func (p *Pool) do(ctx context.Context, method string, peer domain.NodeRef, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal request body: %w", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	// path may already carry a query string; url.Parse normalizes it.
	fullURL, err := url.Parse("http://" + peer.Addr() + path)
	if err != nil {
		return fmt.Errorf("client: build request url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL.String(), reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			p.lgr.Debug("peer RPC timed out", logger.F("peer", peer.Addr()), logger.F("path", path))
			return ErrTimeout
		}
		p.lgr.Debug("peer RPC failed", logger.F("peer", peer.Addr()), logger.F("path", path), logger.F("err", err.Error()))
		return ErrUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return normalizeStatus(resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
