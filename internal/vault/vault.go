// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package vault implements the local KID→key cache the DRM session manager
// consults before issuing a license challenge, backed by an embedded
// Badger key-value store.
package vault

import (
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vinefeeder/envied/internal/drm"
)

// entry is the JSON record stored under each namespaced key.
type entry struct {
	Key  string `json:"key"` // hex-encoded
	Kind string `json:"kind"`
}

// Vault is a Badger-backed implementation of drm.Vault.
type Vault struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens (creating if absent) a Badger database at dir. ttl, if
// non-zero, is applied to every stored key entry.
func Open(dir string, ttl time.Duration) (*Vault, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("vault: open badger db at %s: %w", dir, err)
	}
	return &Vault{db: db, ttl: ttl}, nil
}

// Close releases the underlying database.
func (v *Vault) Close() error {
	return v.db.Close()
}

func namespacedKey(service, kid string) []byte {
	return []byte(fmt.Sprintf("vault:%s:%s", service, kid))
}

// GetKey implements drm.Vault.
func (v *Vault) GetKey(service, kid string) ([]byte, bool) {
	var rec entry
	err := v.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(namespacedKey(service, kid))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, false
	}
	keyBytes, err := decodeHex(rec.Key)
	if err != nil {
		return nil, false
	}
	return keyBytes, true
}

// PutKeys implements drm.Vault, persisting each content key under its
// service-scoped namespace.
func (v *Vault) PutKeys(service string, keys []drm.Key) error {
	return v.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			rec := entry{Key: encodeHex(k.Key), Kind: string(k.Kind)}
			raw, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("vault: marshal key entry: %w", err)
			}
			e := badger.NewEntry(namespacedKey(service, k.KID), raw)
			if v.ttl > 0 {
				e = e.WithTTL(v.ttl)
			}
			if err := txn.SetEntry(e); err != nil {
				return fmt.Errorf("vault: store key entry: %w", err)
			}
		}
		return nil
	})
}

var _ drm.Vault = (*Vault)(nil)
