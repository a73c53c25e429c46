package holds

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const keyPrefix = "number_hold:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Holds sets short-lived Redis keys for numbers handed out by the random
// search. The ticket store remains the authority on ownership.
type Holds struct {
	Client *redis.Client
	TTL    time.Duration
	owner  string
}

func NewHolds(client *redis.Client, ttl time.Duration) *Holds {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Holds{
		Client: client,
		TTL:    ttl,
		owner:  uuid.New().String(),
	}
}

func key(numbers string) string {
	return keyPrefix + numbers
}

// Hold returns false when another searcher already holds numbers.
func (h *Holds) Hold(ctx context.Context, numbers string) (bool, error) {
	ok, err := h.Client.SetNX(ctx, key(numbers), h.owner, h.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("hold %s: %w", numbers, err)
	}
	return ok, nil
}

// Release drops the hold only if this instance placed it.
func (h *Holds) Release(ctx context.Context, numbers string) error {
	if err := releaseScript.Run(ctx, h.Client, []string{key(numbers)}, h.owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release %s: %w", numbers, err)
	}
	return nil
}
