// Package contentcache tracks missing-content digests for pending
// package records in Redis and notifies subscribers when a record's
// content becomes fully available — the multi-instance counterpart to
// MemoryDataStore's in-process missing set, for deployments where the
// process admitting a record isn't the one that later receives its
// content upload.
package contentcache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
)

// presentScript atomically removes a digest from a record's missing
// set and reports how many digests remain, so the caller can tell
// whether this was the last one without a second round trip. It
// returns -1 when the digest was not in the set, so a repeated or
// unknown digest never reports the set as just emptied.
//
// KEYS[1] = missing-set key for the record
// ARGV[1] = digest to remove
var presentScript = redis.NewScript(`
local key = KEYS[1]
local member = ARGV[1]
if redis.call("SREM", key, member) == 0 then
  return -1
end
return redis.call("SCARD", key)
`)

// Cache is a Redis-backed missing-content tracker and notifier.
type Cache struct {
	client  *redis.Client
	channel string
}

// New creates a Cache against the Redis instance at addr.
func New(addr, password string, db int) *Cache {
	return &Cache{
		client:  redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		channel: "registry:content-present",
	}
}

func missingSetKey(logID, recordID hashing.AnyHash) string {
	return fmt.Sprintf("content-missing:%s:%s", logID, recordID)
}

// MarkMissing records that a package record is waiting on the given
// digests before it can be validated.
func (c *Cache) MarkMissing(ctx context.Context, logID, recordID hashing.AnyHash, digests []hashing.AnyHash) error {
	if len(digests) == 0 {
		return nil
	}
	members := make([]any, 0, len(digests))
	for _, d := range digests {
		members = append(members, d.String())
	}
	return c.client.SAdd(ctx, missingSetKey(logID, recordID), members...).Err()
}

// IsMissing reports whether digest is still outstanding for a record.
func (c *Cache) IsMissing(ctx context.Context, logID, recordID, digest hashing.AnyHash) (bool, error) {
	return c.client.SIsMember(ctx, missingSetKey(logID, recordID), digest.String()).Result()
}

// SetPresent marks digest as uploaded for a record, returning true
// exactly once: the call whose removal empties the missing set. That
// caller publishes a notification so another process instance holding
// the pending record can proceed to validate it.
func (c *Cache) SetPresent(ctx context.Context, logID, recordID, digest hashing.AnyHash) (wasLastMissing bool, err error) {
	key := missingSetKey(logID, recordID)
	res, err := presentScript.Run(ctx, c.client, []string{key}, digest.String()).Result()
	if err != nil {
		return false, fmt.Errorf("contentcache: set present failed: %w", err)
	}
	remaining, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("contentcache: unexpected script result %T", res)
	}
	wasLastMissing = remaining == 0
	if wasLastMissing {
		if err := c.client.Publish(ctx, c.channel, key).Err(); err != nil {
			return true, fmt.Errorf("contentcache: publish failed: %w", err)
		}
	}
	return wasLastMissing, nil
}

// Subscribe returns a PubSub delivering the missing-set key of every
// record that just had its last missing digest satisfied.
func (c *Cache) Subscribe(ctx context.Context) *redis.PubSub {
	return c.client.Subscribe(ctx, c.channel)
}

// Close releases the underlying Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
