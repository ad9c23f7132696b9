package stores

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const kindPending byte = 'p'

// PendingRecord is an unverified signup awaiting its code.
type PendingRecord struct {
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	UpdatedAt    int64
}

// PendingStore keeps one PendingRecord per email. Each write refreshes the
// retention TTL; a zero TTL keeps records until deleted.
type PendingStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewPendingStore(redisClient redis.UniversalClient, prefix string, retention time.Duration) *PendingStore {
	if prefix == "" {
		prefix = "og"
	}
	return &PendingStore{
		redis:     redisClient,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *PendingStore) key(email string) string {
	return pendingKey(s.prefix, email)
}

func pendingKey(prefix, email string) string {
	return prefix + ":pending:" + email
}

// Upsert replaces any record stored for record.Email.
func (s *PendingStore) Upsert(ctx context.Context, record *PendingRecord) error {
	encoded, err := encodePendingRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(record.Email), encoded, s.retention).Err(); err != nil {
		return backendError(err)
	}
	return nil
}

func (s *PendingStore) Get(ctx context.Context, email string) (*PendingRecord, error) {
	data, err := s.redis.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, backendError(err)
	}
	return decodePendingRecord(data)
}

// Delete removes the record. Deleting a missing record is not an error.
func (s *PendingStore) Delete(ctx context.Context, email string) error {
	if err := s.redis.Del(ctx, s.key(email)).Err(); err != nil {
		return backendError(err)
	}
	return nil
}

func encodePendingRecord(record *PendingRecord) ([]byte, error) {
	if record == nil {
		return nil, errors.New("nil pending record")
	}
	w := newRecordWriter(kindPending)
	w.str(record.FirstName)
	w.str(record.LastName)
	w.str(record.Email)
	w.str(record.PasswordHash)
	w.int64(record.UpdatedAt)
	return w.bytes()
}

func decodePendingRecord(data []byte) (*PendingRecord, error) {
	r, err := newRecordReader(data, kindPending)
	if err != nil {
		return nil, err
	}
	record := &PendingRecord{
		FirstName:    r.str(),
		LastName:     r.str(),
		Email:        r.str(),
		PasswordHash: r.str(),
		UpdatedAt:    r.int64(),
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return record, nil
}
