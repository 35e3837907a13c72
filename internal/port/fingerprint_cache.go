package port

import "context"

type FingerprintCache interface {
	// GetFingerprint returns the last config fingerprint pushed to an
	// endpoint, or "" if none is cached.
	GetFingerprint(ctx context.Context, mac string) (string, error)

	// SetFingerprint records the fingerprint just pushed to an endpoint.
	SetFingerprint(ctx context.Context, mac, fingerprint string) error

	// ClearFingerprint drops the cached fingerprint so the next check
	// forces a full push.
	ClearFingerprint(ctx context.Context, mac string) error

	// MarkSeen refreshes the endpoint's presence entry (TTL-bound).
	MarkSeen(ctx context.Context, mac string) error
}
