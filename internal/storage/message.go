package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/chatmesh-go/internal/core/domain"
)

const (
	messagePrefix = "msg/"
	filePrefix    = "file/"

	// maxTxnAttempts bounds retries of a read-modify-write transaction that
	// lost a conflict. Every lost attempt means another writer committed,
	// so the bound only has to exceed the number of concurrent writers on
	// one message.
	maxTxnAttempts = 32
)

// MessageStore is the Badger-backed message repository.
type MessageStore struct {
	db *DB
}

// NewMessageStore creates a MessageStore on db.
func NewMessageStore(db *DB) *MessageStore {
	return &MessageStore{db: db}
}

func messageKey(id string) []byte { return []byte(messagePrefix + id) }
func fileKey(id string) []byte    { return []byte(filePrefix + id) }

// Find returns the message or domain.ErrMessageNotFound.
func (s *MessageStore) Find(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	if err := s.get(messageKey(id), &msg); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrMessageNotFound.WithDetails(id)
		}
		return nil, err
	}
	return &msg, nil
}

// Save inserts or replaces msg.
func (s *MessageStore) Save(ctx context.Context, msg *domain.Message) error {
	if msg == nil || msg.ID == "" {
		return domain.ErrMissingArgument.WithDetails("message id is required")
	}
	return s.put(messageKey(msg.ID), msg)
}

// BulkSetReader sets the read time of userID on every listed message that
// exists, in one transaction. Unknown ids are skipped.
func (s *MessageStore) BulkSetReader(ctx context.Context, ids []string, userID string, readAt time.Time) (int, error) {
	if s.db.closed.Load() {
		return 0, ErrClosed
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var updated int
	err := s.update(ctx, func(txn *badger.Txn) error {
		updated = 0
		for _, id := range ids {
			item, err := txn.Get(messageKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}

			var msg domain.Message
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &msg) }); err != nil {
				return fmt.Errorf("decode message %s: %w", id, err)
			}
			msg.MarkRead(userID, readAt)

			data, err := json.Marshal(&msg)
			if err != nil {
				return err
			}
			if err := txn.Set(messageKey(id), data); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("storage: bulk set reader: %w", err)
	}
	return updated, nil
}

// Mutate loads message id, applies fn and writes the result back, all in
// one transaction. fn reports whether it changed the message; nothing is
// written otherwise. fn may run more than once when a concurrent writer
// wins the transaction, each time on a freshly read copy, so it must not
// have side effects beyond the message.
func (s *MessageStore) Mutate(ctx context.Context, id string, fn func(*domain.Message) bool) (*domain.Message, bool, error) {
	if s.db.closed.Load() {
		return nil, false, ErrClosed
	}
	var (
		msg     *domain.Message
		changed bool
	)
	err := s.update(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(messageKey(id))
		if err != nil {
			return err
		}
		var m domain.Message
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &m) }); err != nil {
			return fmt.Errorf("decode message %s: %w", id, err)
		}
		msg, changed = &m, fn(&m)
		if !changed {
			return nil
		}
		data, err := json.Marshal(&m)
		if err != nil {
			return err
		}
		return txn.Set(messageKey(id), data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, domain.ErrMessageNotFound.WithDetails(id)
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: mutate message %s: %w", id, err)
	}
	return msg, changed, nil
}

// FindFile returns file metadata or domain.ErrFileNotFound.
func (s *MessageStore) FindFile(ctx context.Context, id string) (*domain.File, error) {
	var file domain.File
	if err := s.get(fileKey(id), &file); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrFileNotFound.WithDetails(id)
		}
		return nil, err
	}
	return &file, nil
}

// SaveFile inserts or replaces file metadata.
func (s *MessageStore) SaveFile(ctx context.Context, file *domain.File) error {
	if file == nil || file.ID == "" {
		return domain.ErrMissingArgument.WithDetails("file id is required")
	}
	return s.put(fileKey(file.ID), file)
}

// get decodes the JSON value under key into v. A missing key returns
// badger.ErrKeyNotFound.
func (s *MessageStore) get(key []byte, v any) error {
	if s.db.closed.Load() {
		return ErrClosed
	}
	return s.db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

func (s *MessageStore) put(key []byte, v any) error {
	if s.db.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	return s.db.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// update runs fn in a read-write transaction, retrying on conflict.
func (s *MessageStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnAttempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = s.db.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}
