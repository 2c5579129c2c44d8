package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Outcome of reserving an idempotency key.
type Outcome int

const (
	// Proceed means the key was free and is now reserved for the caller.
	Proceed Outcome = iota
	// Replay means the request already completed; the stored response
	// should be returned.
	Replay
	// InFlight means another request with the key has not finished.
	InFlight
	// Mismatch means the key was used with a different request body.
	Mismatch
)

// StoredResponse is what a completed request left behind.
type StoredResponse struct {
	Status      int
	Body        []byte
	fingerprint string
	done        bool
}

// Idempotency remembers responses to keyed requests so a retried
// request is answered without being executed twice. Keys are scoped by
// owner.
type Idempotency struct {
	entries *LRU[StoredResponse]
}

func NewIdempotency(maxKeys int, ttl time.Duration) *Idempotency {
	return &Idempotency{entries: NewLRU[StoredResponse](maxKeys, ttl)}
}

func newIdempotencyWithClock(maxKeys int, ttl time.Duration, now func() time.Time) *Idempotency {
	return &Idempotency{entries: NewLRUWithClock[StoredResponse](maxKeys, ttl, now)}
}

// Fingerprint hashes a request body.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func scoped(owner, key string) string { return owner + "\x00" + key }

// Reserve claims key for a request with the given body fingerprint.
func (c *Idempotency) Reserve(owner, key, fingerprint string) (StoredResponse, Outcome) {
	got, fresh := c.entries.SetIfAbsent(scoped(owner, key), StoredResponse{fingerprint: fingerprint})
	switch {
	case fresh:
		return StoredResponse{}, Proceed
	case got.fingerprint != fingerprint:
		return StoredResponse{}, Mismatch
	case !got.done:
		return StoredResponse{}, InFlight
	default:
		return got, Replay
	}
}

// Complete stores the response for a reserved key.
func (c *Idempotency) Complete(owner, key, fingerprint string, status int, body []byte) {
	c.entries.Set(scoped(owner, key), StoredResponse{
		Status:      status,
		Body:        append([]byte(nil), body...),
		fingerprint: fingerprint,
		done:        true,
	})
}

// Release frees a reserved key so the request can be retried.
func (c *Idempotency) Release(owner, key string) {
	c.entries.Delete(scoped(owner, key))
}

func (c *Idempotency) CleanExpired() int { return c.entries.CleanExpired() }
