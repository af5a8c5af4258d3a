// Package statestore combines blob store backends.
package statestore

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropwatch/dropwatch/internal/engine"
)

// Mirrored writes through to a remote mirror so a redeploy on an empty disk
// can restore the login session. Reads fall back to the mirror when the
// primary copy is missing. Mirror write failures are logged, not returned;
// the primary copy is the source of truth.
type Mirrored struct {
	primary engine.BlobStore
	mirror  engine.BlobStore
	logger  *zap.Logger
}

// NewMirrored wraps primary with a best-effort mirror.
func NewMirrored(primary, mirror engine.BlobStore, logger *zap.Logger) *Mirrored {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirrored{primary: primary, mirror: mirror, logger: logger}
}

// Put stores the blob in the primary, then mirrors it.
func (s *Mirrored) Put(ctx context.Context, key string, data []byte) error {
	if err := s.primary.Put(ctx, key, data); err != nil {
		return err
	}
	if err := s.mirror.Put(ctx, key, data); err != nil {
		s.logger.Warn("state mirror write failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// Get reads from the primary, falling back to the mirror. A mirror hit is
// copied back to the primary so later reads stay local.
func (s *Mirrored) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.primary.Get(ctx, key)
	if err == nil {
		return data, nil
	}
	data, mirrorErr := s.mirror.Get(ctx, key)
	if mirrorErr != nil {
		return nil, err
	}
	if putErr := s.primary.Put(ctx, key, data); putErr != nil {
		s.logger.Warn("state restore to primary failed", zap.String("key", key), zap.Error(putErr))
	}
	return data, nil
}
