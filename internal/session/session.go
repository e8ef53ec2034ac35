// Package session holds what must survive a round trip through a vendor's
// authorization page: the expected state token per vendor, the codes already
// exchanged and the operations waiting for authorization to finish.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"assetdistributor/internal/asset"
	"assetdistributor/internal/cache"
)

const prefix = "session:"

type OpKind string

const (
	OpUpload OpKind = "upload"
	OpUpdate OpKind = "update"
	OpRemove OpKind = "remove"
)

func ParseOpKind(s string) (OpKind, error) {
	switch k := OpKind(s); k {
	case OpUpload, OpUpdate, OpRemove:
		return k, nil
	default:
		return "", fmt.Errorf("unknown operation %q", s)
	}
}

// Operation is the minimal record needed to replay a distribution request
// once its vendor is authorized.
type Operation struct {
	ID          string         `json:"id"`
	Owner       string         `json:"owner"`
	Vendor      string         `json:"vendor"`
	Fingerprint string         `json:"fingerprint"`
	Kind        OpKind         `json:"kind"`
	Path        string         `json:"path"`
	Metadata    asset.Metadata `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Session is bound to one session id. The CLI uses the owner identity; an
// HTTP host would use its own session cookie.
type Session struct {
	id    string
	cache cache.Cache
}

func New(c cache.Cache, id string) *Session {
	return &Session{id: id, cache: c}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) key(parts ...string) string {
	k := prefix + s.id
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (s *Session) SetState(ctx context.Context, vendor, state string) error {
	if err := s.cache.Save(ctx, s.key("state", vendor), []byte(state)); err != nil {
		return fmt.Errorf("failed to save %s state: %w", vendor, err)
	}
	return nil
}

func (s *Session) ExpectedState(ctx context.Context, vendor string) (string, bool, error) {
	v, ok, err := s.cache.Fetch(ctx, s.key("state", vendor))
	if err != nil {
		return "", false, fmt.Errorf("failed to fetch %s state: %w", vendor, err)
	}
	return string(v), ok, nil
}

func (s *Session) ClearState(ctx context.Context, vendor string) error {
	return s.cache.Delete(ctx, s.key("state", vendor))
}

// ConsumeCode reports whether code is seen for the first time for vendor and
// marks it used.
func (s *Session) ConsumeCode(ctx context.Context, vendor, code string) (bool, error) {
	fresh := false
	err := s.cache.Update(ctx, s.key("codes", vendor), func(current []byte, found bool) ([]byte, error) {
		var codes []string
		if found {
			if err := json.Unmarshal(current, &codes); err != nil {
				return nil, fmt.Errorf("failed to decode consumed codes: %w", err)
			}
		}
		if slices.Contains(codes, code) {
			fresh = false
			return nil, cache.ErrSkipWrite
		}
		fresh = true
		return json.Marshal(append(codes, code))
	})
	if err != nil {
		return false, fmt.Errorf("failed to consume %s code: %w", vendor, err)
	}
	return fresh, nil
}

// Suspend records op for replay. An operation with the same fingerprint and
// kind already pending for the vendor is replaced in place.
func (s *Session) Suspend(ctx context.Context, op Operation) (Operation, error) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}

	err := s.updatePending(ctx, op.Vendor, func(ops []Operation) ([]Operation, bool) {
		for i, existing := range ops {
			if existing.Fingerprint == op.Fingerprint && existing.Kind == op.Kind {
				op.ID = existing.ID
				op.CreatedAt = existing.CreatedAt
				ops[i] = op
				return ops, true
			}
		}
		return append(ops, op), true
	})
	if err != nil {
		return Operation{}, err
	}
	return op, nil
}

// Pending returns the vendor's operations in the order they were suspended.
func (s *Session) Pending(ctx context.Context, vendor string) ([]Operation, error) {
	v, ok, err := s.cache.Fetch(ctx, s.key("pending", vendor))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending %s operations: %w", vendor, err)
	}
	return decodeOps(v, ok)
}

func (s *Session) Release(ctx context.Context, vendor, id string) error {
	return s.updatePending(ctx, vendor, func(ops []Operation) ([]Operation, bool) {
		i := slices.IndexFunc(ops, func(op Operation) bool { return op.ID == id })
		if i < 0 {
			return ops, false
		}
		return slices.Delete(ops, i, i+1), true
	})
}

func (s *Session) updatePending(ctx context.Context, vendor string, fn func([]Operation) ([]Operation, bool)) error {
	err := s.cache.Update(ctx, s.key("pending", vendor), func(current []byte, found bool) ([]byte, error) {
		ops, err := decodeOps(current, found)
		if err != nil {
			return nil, err
		}
		next, changed := fn(ops)
		if !changed {
			return nil, cache.ErrSkipWrite
		}
		if len(next) == 0 {
			return nil, nil
		}
		return json.Marshal(next)
	})
	if err != nil {
		return fmt.Errorf("failed to update pending %s operations: %w", vendor, err)
	}
	return nil
}

func decodeOps(data []byte, found bool) ([]Operation, error) {
	if !found || len(data) == 0 {
		return nil, nil
	}
	var ops []Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("failed to decode pending operations: %w", err)
	}
	return ops, nil
}
