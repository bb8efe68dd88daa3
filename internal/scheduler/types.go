package scheduler

import "time"

// Token identifies one scheduled wake request.
type Token string

// WakeRequest is a pending delivery of Payload at TriggerAt.
type WakeRequest struct {
	Token Token
	// Key groups requests; at most one request per key is pending.
	Key       string
	TriggerAt time.Time
	Payload   []byte
	// CronExpr makes the request recurring. Empty means one-shot.
	CronExpr string
}

// Store persists pending wake requests.
type Store interface {
	// Put inserts req, replacing any pending request with the same key.
	Put(req WakeRequest) error
	// Delete removes the request with token. Missing tokens are not an error.
	Delete(token Token) error
	// DeleteKey removes the request pending under key.
	DeleteKey(key string) error
	// Pending returns every stored request ordered by trigger time.
	Pending() ([]WakeRequest, error)
	Close() error
}
