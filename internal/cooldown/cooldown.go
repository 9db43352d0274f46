// Package cooldown keeps recently contacted handles out of new campaigns and
// lets concurrent runs claim a target exclusively, both backed by Redis.
package cooldown

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"outreach-engine/internal/models"
)

const keyPrefix = "outreach:"

func handleKey(kind string, target models.Target) string {
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, kind, target.Channel, strings.ToLower(strings.TrimSpace(target.Handle)))
}

// Policy skips handles contacted on the same channel within that channel's
// cooldown. Channels without a cooldown are always eligible.
type Policy struct {
	client    redis.Cmdable
	cooldowns map[models.Channel]time.Duration
	now       func() time.Time
}

func NewPolicy(client redis.Cmdable, cooldowns map[models.Channel]time.Duration) *Policy {
	c := make(map[models.Channel]time.Duration, len(cooldowns))
	for ch, d := range cooldowns {
		if d > 0 {
			c[ch] = d
		}
	}
	return &Policy{client: client, cooldowns: c, now: time.Now}
}

// Eligible reports whether the target may be contacted now. When it may
// not, reason is models.SkipReasonCooldown.
func (p *Policy) Eligible(ctx context.Context, target models.Target) (bool, string, error) {
	d, ok := p.cooldowns[target.Channel]
	if !ok {
		return true, "", nil
	}
	if target.LastContactedAt != nil && p.now().Sub(*target.LastContactedAt) < d {
		return false, models.SkipReasonCooldown, nil
	}

	n, err := p.client.Exists(ctx, handleKey("cooldown", target)).Result()
	if err != nil {
		return false, "", fmt.Errorf("cooldown lookup: %w", err)
	}
	if n > 0 {
		return false, models.SkipReasonCooldown, nil
	}
	return true, "", nil
}

// MarkContacted starts the cooldown window at at.
func (p *Policy) MarkContacted(ctx context.Context, target models.Target, at time.Time) error {
	d, ok := p.cooldowns[target.Channel]
	if !ok {
		return nil
	}
	remaining := d - p.now().Sub(at)
	if remaining <= 0 {
		return nil
	}
	if err := p.client.Set(ctx, handleKey("cooldown", target), at.UTC().Format(time.RFC3339), remaining).Err(); err != nil {
		return fmt.Errorf("cooldown mark: %w", err)
	}
	return nil
}

// releaseScript deletes the lease only while the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease gives one run exclusive use of a target until released or until
// the TTL lapses.
type Lease struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewLease(client redis.Cmdable, ttl time.Duration) *Lease {
	return &Lease{client: client, ttl: ttl}
}

func (l *Lease) Acquire(ctx context.Context, target models.Target, owner string) (bool, error) {
	ok, err := l.client.SetNX(ctx, handleKey("lease", target), owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lease acquire: %w", err)
	}
	return ok, nil
}

func (l *Lease) Release(ctx context.Context, target models.Target, owner string) error {
	err := releaseScript.Run(ctx, l.client, []string{handleKey("lease", target)}, owner).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lease release: %w", err)
	}
	return nil
}
