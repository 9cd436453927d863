package pipeline

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// attempts counts transient broadcast failures per transaction id.
// Entries expire so ids that stop failing do not accumulate.
type attempts struct {
	c *cache.Cache
}

func newAttempts(ttl time.Duration) *attempts {
	return &attempts{c: cache.New(ttl, 2*ttl)}
}

// record adds one failure for id and returns the new count.
func (a *attempts) record(id string) int {
	if err := a.c.Add(id, 1, cache.DefaultExpiration); err == nil {
		return 1
	}
	n, err := a.c.IncrementInt(id, 1)
	if err != nil {
		// expired between Add and IncrementInt
		a.c.Set(id, 1, cache.DefaultExpiration)
		return 1
	}
	return n
}

// count returns the current failure count for id.
func (a *attempts) count(id string) int {
	v, ok := a.c.Get(id)
	if !ok {
		return 0
	}
	return v.(int)
}

// reset forgets id.
func (a *attempts) reset(id string) {
	a.c.Delete(id)
}
