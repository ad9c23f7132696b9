package stores

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/MrEthical07/otpgate/internal"
	"github.com/redis/go-redis/v9"
)

const kindCredential byte = 'c'

// CredentialRecord binds one bearer token to one account.
type CredentialRecord struct {
	AccountID string
	Token     string
	CreatedAt int64
}

// KEYS[1] account credential key, KEYS[2] token index key.
// ARGV[1] encoded candidate, ARGV[2] account id.
// Returns {stored record, 1 created | 0 existing | -1 token collision}.
var getOrCreateCredentialScript = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing then
  return {existing, 0}
end
if redis.call('EXISTS', KEYS[2]) == 1 then
  return {'', -1}
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[2])
return {ARGV[1], 1}
`)

// CredentialStore keeps at most one credential per account. Tokens are
// indexed by their SHA-256 fingerprint, never by plaintext.
type CredentialStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewCredentialStore(redisClient redis.UniversalClient, prefix string) *CredentialStore {
	if prefix == "" {
		prefix = "og"
	}
	return &CredentialStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *CredentialStore) accountKey(accountID string) string {
	return s.prefix + ":cred:acct:" + accountID
}

func (s *CredentialStore) tokenKey(token string) string {
	return s.prefix + ":cred:tok:" + internal.TokenFingerprint(token)
}

// GetOrCreate stores candidate when its account has no credential and
// returns whichever credential is stored afterwards.
func (s *CredentialStore) GetOrCreate(ctx context.Context, candidate *CredentialRecord) (*CredentialRecord, bool, error) {
	encoded, err := encodeCredentialRecord(candidate)
	if err != nil {
		return nil, false, err
	}
	res, err := getOrCreateCredentialScript.Run(
		ctx,
		s.redis,
		[]string{s.accountKey(candidate.AccountID), s.tokenKey(candidate.Token)},
		encoded,
		candidate.AccountID,
	).Slice()
	if err != nil {
		return nil, false, backendError(err)
	}
	if len(res) != 2 {
		return nil, false, fmt.Errorf("%w: unexpected script reply", ErrBackend)
	}
	status, ok := res[1].(int64)
	if !ok {
		return nil, false, fmt.Errorf("%w: unexpected script status", ErrBackend)
	}
	if status < 0 {
		return nil, false, ErrTokenCollision
	}
	raw, ok := res[0].(string)
	if !ok {
		return nil, false, fmt.Errorf("%w: unexpected script record", ErrBackend)
	}
	record, err := decodeCredentialRecord([]byte(raw))
	if err != nil {
		return nil, false, err
	}
	return record, status == 1, nil
}

// GetByToken resolves token to its credential.
func (s *CredentialStore) GetByToken(ctx context.Context, token string) (*CredentialRecord, error) {
	accountID, err := s.redis.Get(ctx, s.tokenKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, backendError(err)
	}
	data, err := s.redis.Get(ctx, s.accountKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, backendError(err)
	}
	record, err := decodeCredentialRecord(data)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(record.Token), []byte(token)) != 1 {
		return nil, ErrNotFound
	}
	return record, nil
}

func encodeCredentialRecord(record *CredentialRecord) ([]byte, error) {
	if record == nil {
		return nil, errors.New("nil credential record")
	}
	if record.AccountID == "" || record.Token == "" {
		return nil, errors.New("credential record requires account id and token")
	}
	w := newRecordWriter(kindCredential)
	w.str(record.AccountID)
	w.str(record.Token)
	w.int64(record.CreatedAt)
	return w.bytes()
}

func decodeCredentialRecord(data []byte) (*CredentialRecord, error) {
	r, err := newRecordReader(data, kindCredential)
	if err != nil {
		return nil, err
	}
	record := &CredentialRecord{
		AccountID: r.str(),
		Token:     r.str(),
		CreatedAt: r.int64(),
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return record, nil
}
