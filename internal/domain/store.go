package domain

import "context"

// StrategyStore is the persisted desired-state seam the Scheduler reads
// every tick. Backed by internal/store/postgres in production.
type StrategyStore interface {
	ListEnabled(ctx context.Context) ([]StrategyRow, error)
}

// CredentialStore resolves (user, exchange) to a sealed credential row.
// Backed by internal/store/postgres; opening the sealed fields is the
// caller's (internal/credential) job.
type CredentialStore interface {
	Get(ctx context.Context, userID int64, exchange string) (SealedCredentials, error)
}

// FollowerStore is the system-of-record for copy-trading relationships,
// read through on a FollowerCache miss and written through on follow/unfollow.
type FollowerStore interface {
	ListActiveFollowers(ctx context.Context, leaderUserID int64) ([]int64, error)
	Follow(ctx context.Context, leaderUserID, followerUserID int64) error
	Unfollow(ctx context.Context, leaderUserID, followerUserID int64) error
}
