package service

import (
	"context"
	"time"

	"github.com/yndnr/chatmesh-go/internal/core/domain"
	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
)

// MessageRepository is the storage collaborator for messages and file
// metadata.
type MessageRepository interface {
	// Find returns the message or ErrMessageNotFound.
	Find(ctx context.Context, id string) (*domain.Message, error)
	// Save inserts or replaces the message.
	Save(ctx context.Context, msg *domain.Message) error
	// Mutate applies fn to the stored message and persists the result
	// atomically with respect to other writers, including BulkSetReader.
	// fn reports whether it changed anything. Returns ErrMessageNotFound
	// when id is unknown.
	Mutate(ctx context.Context, id string, fn func(*domain.Message) bool) (*domain.Message, bool, error)
	// BulkSetReader sets Readers[userID] = readAt on every listed message
	// that exists, in one batch, and returns how many were updated.
	BulkSetReader(ctx context.Context, ids []string, userID string, readAt time.Time) (int, error)
	// FindFile returns file metadata or ErrFileNotFound.
	FindFile(ctx context.Context, id string) (*domain.File, error)
	// SaveFile inserts or replaces file metadata.
	SaveFile(ctx context.Context, file *domain.File) error
}

// ReadStatusService applies read receipts in bulk.
type ReadStatusService struct {
	repo MessageRepository
	log  logger.Logger
}

// NewReadStatusService creates a ReadStatusService.
func NewReadStatusService(repo MessageRepository, log logger.Logger) *ReadStatusService {
	if log == nil {
		log = logger.Default()
	}
	return &ReadStatusService{repo: repo, log: log.With("component", "readstatus")}
}

// UpdateReadStatus records that userID read every message in messageIDs at
// readAt. The write is set-not-merge: a call with an older readAt than a
// previous one moves the receipt backwards. Callers pass monotonically
// increasing times per user.
func (s *ReadStatusService) UpdateReadStatus(ctx context.Context, messageIDs []string, userID string, readAt time.Time) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if userID == "" {
		return domain.ErrMissingArgument.WithDetails("user_id is required")
	}

	n, err := s.repo.BulkSetReader(ctx, messageIDs, userID, readAt)
	if err != nil {
		logger.L(ctx).Error("read status update failed", "component", "readstatus", "user_id", userID, "count", len(messageIDs), "error", err)
		return domain.ErrStorageError.WithCause(err)
	}
	s.log.Debug("read status updated", "user_id", userID, "requested", len(messageIDs), "updated", n)
	return nil
}
