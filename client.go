package ratelimit

import (
	"github.com/redis/go-redis/v9"
)

// Client is the store capability the engine consumes. Every go-redis client
// (single node, cluster, ring, sentinel-backed) satisfies it. The engine
// issues nothing but script invocations, so the scripting surface is the
// whole contract.
type Client = redis.Scripter

// NewClient builds a single-node client from connection options. Callers
// that already hold a client pass it through Config.Client instead.
func NewClient(opts *redis.Options) *redis.Client {
	return redis.NewClient(opts)
}
