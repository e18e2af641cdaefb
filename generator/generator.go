package generator

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Codes are drawn from the 6-digit space (900,000 values). Family codes
// rely on randomness alone; guest invites additionally retry against the
// invites collection on collision.
const (
	codeMin  = 100000
	codeSpan = 900000
)

var (
	mu  sync.Mutex
	rng = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// InviteCode returns a random 6-digit numeric code.
func InviteCode() string {
	mu.Lock()
	defer mu.Unlock()
	return fmt.Sprintf("%06d", codeMin+rng.Intn(codeSpan))
}
