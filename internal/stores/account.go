package stores

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const kindAccount byte = 'a'

// AccountRecord is a verified account.
type AccountRecord struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	CreatedAt    int64
}

// KEYS[1] email key, KEYS[2] id index key.
// ARGV[1] encoded record, ARGV[2] email.
// Returns 1 when created, 0 when the email is taken, -1 when the id is taken.
var createAccountScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
if redis.call('EXISTS', KEYS[2]) == 1 then
  return -1
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[2])
return 1
`)

// AccountStore keeps accounts keyed by email with a secondary id index.
type AccountStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewAccountStore(redisClient redis.UniversalClient, prefix string) *AccountStore {
	if prefix == "" {
		prefix = "og"
	}
	return &AccountStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *AccountStore) emailKey(email string) string {
	return s.prefix + ":acct:email:" + email
}

func (s *AccountStore) idKey(id string) string {
	return s.prefix + ":acct:id:" + id
}

// CreateIfAbsent stores record unless an account for record.Email exists,
// in which case it returns ErrAccountExists and leaves the stored account
// untouched.
func (s *AccountStore) CreateIfAbsent(ctx context.Context, record *AccountRecord) error {
	encoded, err := encodeAccountRecord(record)
	if err != nil {
		return err
	}
	res, err := createAccountScript.Run(
		ctx,
		s.redis,
		[]string{s.emailKey(record.Email), s.idKey(record.ID)},
		encoded,
		record.Email,
	).Int()
	if err != nil {
		return backendError(err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return ErrAccountExists
	default:
		return fmt.Errorf("%w: id %s already indexed", ErrAccountExists, record.ID)
	}
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*AccountRecord, error) {
	data, err := s.redis.Get(ctx, s.emailKey(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, backendError(err)
	}
	return decodeAccountRecord(data)
}

func (s *AccountStore) GetByID(ctx context.Context, id string) (*AccountRecord, error) {
	email, err := s.redis.Get(ctx, s.idKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, backendError(err)
	}
	record, err := s.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if record.ID != id {
		return nil, ErrNotFound
	}
	return record, nil
}

func encodeAccountRecord(record *AccountRecord) ([]byte, error) {
	if record == nil {
		return nil, errors.New("nil account record")
	}
	if record.ID == "" || record.Email == "" {
		return nil, errors.New("account record requires id and email")
	}
	w := newRecordWriter(kindAccount)
	w.str(record.ID)
	w.str(record.FirstName)
	w.str(record.LastName)
	w.str(record.Email)
	w.str(record.PasswordHash)
	w.int64(record.CreatedAt)
	return w.bytes()
}

func decodeAccountRecord(data []byte) (*AccountRecord, error) {
	r, err := newRecordReader(data, kindAccount)
	if err != nil {
		return nil, err
	}
	record := &AccountRecord{
		ID:           r.str(),
		FirstName:    r.str(),
		LastName:     r.str(),
		Email:        r.str(),
		PasswordHash: r.str(),
		CreatedAt:    r.int64(),
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return record, nil
}
