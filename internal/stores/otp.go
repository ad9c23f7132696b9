package stores

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const kindOTP byte = 'o'

// OTPEntry is one issued code. IssuedAt is Unix nanoseconds.
type OTPEntry struct {
	Code     string
	IssuedAt int64
}

// OTPStore keeps an append-only list of codes per email.
type OTPStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewOTPStore(redisClient redis.UniversalClient, prefix string, retention time.Duration) *OTPStore {
	if prefix == "" {
		prefix = "og"
	}
	return &OTPStore{
		redis:     redisClient,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *OTPStore) key(email string) string {
	return s.prefix + ":otp:" + email
}

// Append pushes entry to the end of the email's list and refreshes the
// retention of the list and of the email's pending record in the same
// transaction, so a code never outlives the registration it verifies.
func (s *OTPStore) Append(ctx context.Context, email string, entry OTPEntry) error {
	encoded, err := encodeOTPEntry(entry)
	if err != nil {
		return err
	}
	key := s.key(email)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, encoded)
		if s.retention > 0 {
			pipe.Expire(ctx, key, s.retention)
			pipe.Expire(ctx, pendingKey(s.prefix, email), s.retention)
		}
		return nil
	})
	if err != nil {
		return backendError(err)
	}
	return nil
}

// List returns every entry in insertion order.
func (s *OTPStore) List(ctx context.Context, email string) ([]OTPEntry, error) {
	raw, err := s.redis.LRange(ctx, s.key(email), 0, -1).Result()
	if err != nil {
		return nil, backendError(err)
	}
	entries := make([]OTPEntry, 0, len(raw))
	for _, item := range raw {
		entry, err := decodeOTPEntry([]byte(item))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Latest returns the entry with the greatest IssuedAt. Entries issued at the
// same instant resolve to the one appended last.
func (s *OTPStore) Latest(ctx context.Context, email string) (*OTPEntry, error) {
	entries, err := s.List(ctx, email)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	latest := entries[0]
	for _, entry := range entries[1:] {
		if entry.IssuedAt >= latest.IssuedAt {
			latest = entry
		}
	}
	return &latest, nil
}

// Delete drops every entry for email.
func (s *OTPStore) Delete(ctx context.Context, email string) error {
	if err := s.redis.Del(ctx, s.key(email)).Err(); err != nil {
		return backendError(err)
	}
	return nil
}

func encodeOTPEntry(entry OTPEntry) ([]byte, error) {
	if entry.Code == "" {
		return nil, errors.New("empty otp code")
	}
	w := newRecordWriter(kindOTP)
	w.str(entry.Code)
	w.int64(entry.IssuedAt)
	return w.bytes()
}

func decodeOTPEntry(data []byte) (OTPEntry, error) {
	r, err := newRecordReader(data, kindOTP)
	if err != nil {
		return OTPEntry{}, err
	}
	entry := OTPEntry{
		Code:     r.str(),
		IssuedAt: r.int64(),
	}
	if err := r.done(); err != nil {
		return OTPEntry{}, err
	}
	return entry, nil
}
