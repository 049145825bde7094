// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package cache

import "context"

// Store is a string key/value store that survives restarts.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// Batcher is implemented by stores that can apply several writes atomically.
type Batcher interface {
	Apply(ctx context.Context, sets map[string]string, removes []string) error
}

// Apply writes sets and removes through s, atomically when s is a Batcher.
func Apply(ctx context.Context, s Store, sets map[string]string, removes []string) error {
	if b, ok := s.(Batcher); ok {
		return b.Apply(ctx, sets, removes)
	}
	for k, v := range sets {
		if err := s.Set(ctx, k, v); err != nil {
			return err
		}
	}
	for _, k := range removes {
		if err := s.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// prefixed namespaces every key of an underlying Store.
type prefixed struct {
	inner  Store
	prefix string
}

// Prefixed returns a Store that stores every key as prefix+key in s.
// Stores with different prefixes never observe each other's keys.
func Prefixed(s Store, prefix string) Store {
	return &prefixed{inner: s, prefix: prefix}
}

func (p *prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key, value string) error {
	return p.inner.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Remove(ctx context.Context, key string) error {
	return p.inner.Remove(ctx, p.prefix+key)
}

func (p *prefixed) Apply(ctx context.Context, sets map[string]string, removes []string) error {
	ps := make(map[string]string, len(sets))
	for k, v := range sets {
		ps[p.prefix+k] = v
	}
	pr := make([]string, 0, len(removes))
	for _, k := range removes {
		pr = append(pr, p.prefix+k)
	}
	return Apply(ctx, p.inner, ps, pr)
}
