// Package presence tracks which authenticated users are online and when
// they were last seen. Tracking is best-effort: the chat core never depends
// on it and the server runs fine without a backing store.
package presence

import (
	"context"
	"time"
)

// Tracker records online status for authenticated users.
type Tracker interface {
	// MarkOnline flags a user as online.
	MarkOnline(ctx context.Context, userID int64) error

	// MarkOffline clears the online flag and records the last-seen time.
	MarkOffline(ctx context.Context, userID int64) error

	// Status reports whether a user is online and their last-seen time.
	// lastSeen is zero when the user has never disconnected.
	Status(ctx context.Context, userID int64) (online bool, lastSeen time.Time, err error)
}

// Nop is the tracker used when no presence store is configured.
type Nop struct{}

func (Nop) MarkOnline(context.Context, int64) error  { return nil }
func (Nop) MarkOffline(context.Context, int64) error { return nil }
func (Nop) Status(context.Context, int64) (bool, time.Time, error) {
	return false, time.Time{}, nil
}
