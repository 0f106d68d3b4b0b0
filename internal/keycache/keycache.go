// Package keycache puts a cache in front of public key resolution. A key id
// names exactly one public key forever, so entries never need invalidation;
// only successful lookups are cached so a key registered later is seen.
package keycache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	keycrypto "github.com/robcowart/certproof/internal/crypto"
	"github.com/robcowart/certproof/internal/proof"
	"github.com/zeebo/xxh3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("keycache")

const sharedKeyPrefix = "certproof:pubkey:"

// Memcache is the subset of *memcache.Client used for the shared tier.
type Memcache interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
}

// Resolver resolves public keys through an in-process cache, then an
// optional shared memcached tier, then the source.
type Resolver struct {
	source proof.PublicKeyResolver
	local  *cache.Cache
	shared Memcache
	ttl    time.Duration
	logger *zap.Logger
}

// New wraps source. shared may be nil.
func New(source proof.PublicKeyResolver, shared Memcache, ttl time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{
		source: source,
		local:  cache.New(ttl, 2*ttl),
		shared: shared,
		ttl:    ttl,
		logger: logger,
	}
}

type sharedEntry struct {
	KeyID        string `json:"keyId"`
	Algorithm    string `json:"algorithm"`
	Owner        string `json:"owner"`
	PublicKeyPEM string `json:"publicKeyPem"`
}

// ResolvePublicKey implements proof.PublicKeyResolver.
func (r *Resolver) ResolvePublicKey(ctx context.Context, keyID string) (*proof.PublicKey, error) {
	ctx, span := tracer.Start(ctx, "KeyCache.ResolvePublicKey")
	defer span.End()

	if x, found := r.local.Get(keyID); found {
		span.SetAttributes(attribute.String("tier", "local"))
		return x.(*proof.PublicKey), nil
	}

	if r.shared != nil {
		pub, err := r.getShared(keyID)
		if err == nil {
			span.SetAttributes(attribute.String("tier", "shared"))
			r.local.Set(keyID, pub, cache.DefaultExpiration)
			return pub, nil
		}
		if !errors.Is(err, memcache.ErrCacheMiss) {
			span.RecordError(err)
			r.logger.Warn("Shared key cache read failed", zap.String("key_id", keyID), zap.Error(err))
		}
	}

	pub, err := r.source.ResolvePublicKey(ctx, keyID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("tier", "source"))

	r.local.Set(keyID, pub, cache.DefaultExpiration)
	if r.shared != nil {
		if err := r.putShared(pub); err != nil {
			span.RecordError(err)
			r.logger.Warn("Shared key cache write failed", zap.String("key_id", keyID), zap.Error(err))
		}
	}

	return pub, nil
}

// sharedKey hashes the key id so arbitrary caller-supplied ids are always
// valid memcached keys.
func sharedKey(keyID string) string {
	sum := xxh3.HashString128(keyID).Bytes()
	return sharedKeyPrefix + hex.EncodeToString(sum[:])
}

func (r *Resolver) getShared(keyID string) (*proof.PublicKey, error) {
	item, err := r.shared.Get(sharedKey(keyID))
	if err != nil {
		return nil, errors.Wrap(err, "memcache get")
	}

	var entry sharedEntry
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return nil, errors.Wrap(err, "decode shared entry")
	}
	if entry.KeyID != keyID {
		return nil, errors.Errorf("shared entry is for key %q", entry.KeyID)
	}

	pub, err := keycrypto.ParsePublicKeyPEM(entry.PublicKeyPEM)
	if err != nil {
		return nil, errors.Wrap(err, "parse shared entry")
	}

	return &proof.PublicKey{
		KeyID:     entry.KeyID,
		Algorithm: entry.Algorithm,
		Owner:     entry.Owner,
		Key:       pub,
	}, nil
}

func (r *Resolver) putShared(pub *proof.PublicKey) error {
	pemText, err := keycrypto.MarshalPublicKeyPEM(pub.Key)
	if err != nil {
		return errors.Wrap(err, "encode public key")
	}

	value, err := json.Marshal(sharedEntry{
		KeyID:        pub.KeyID,
		Algorithm:    pub.Algorithm,
		Owner:        pub.Owner,
		PublicKeyPEM: pemText,
	})
	if err != nil {
		return errors.Wrap(err, "encode shared entry")
	}

	err = r.shared.Set(&memcache.Item{
		Key:        sharedKey(pub.KeyID),
		Value:      value,
		Expiration: int32(r.ttl / time.Second),
	})
	return errors.Wrap(err, "memcache set")
}
