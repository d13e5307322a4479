// Package locks serializes the matcher's check-then-provision path per
// space. Without the claim, two concurrent match calls that both see an
// empty space would each provision a redundant workload.
package locks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ProvisionLock hands out exclusive, non-blocking claims by key. TryAcquire
// returns ok=false when another holder has the claim; the caller re-queries
// and backs off instead of waiting.
type ProvisionLock interface {
	TryAcquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// Keyed is an in-process claim table for single-replica deployments.
type Keyed struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewKeyed() *Keyed {
	return &Keyed{held: make(map[string]bool)}
}

func (k *Keyed) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.held[key] {
		return nil, false, nil
	}
	k.held[key] = true

	release := func() {
		k.mu.Lock()
		defer k.mu.Unlock()
		delete(k.held, key)
	}
	return release, true, nil
}

// Redis claims across replicas with a SET NX lease. The TTL bounds how long
// a crashed holder can block provisioning for a space.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: "provision:", ttl: ttl}
}

// releaseScript deletes the lease only if this holder still owns it, so a
// slow release cannot drop a lease the TTL already handed to someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (r *Redis) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	name := r.prefix + key

	ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, r.client, []string{name}, token).Err()
	}
	return release, true, nil
}
