package engine

import (
	"fmt"
	"sync"
	"time"
)

// idClock hands out strictly increasing timestamps so two obligations for the
// same pair created in the same instant still get distinct ids.
type idClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func (c *idClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.now().UnixNano()
	if n <= c.last {
		n = c.last + 1
	}
	c.last = n
	return time.Unix(0, n).UTC()
}

// ObligationID derives the id of an obligation from its receiver, sender and
// creation time.
func ObligationID(receiverID, senderID uint, created time.Time) string {
	return fmt.Sprintf("%d-%d-%d", receiverID, senderID, created.UnixNano())
}
