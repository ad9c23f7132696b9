package otpgate

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/otpgate/internal/stores"
	"github.com/redis/go-redis/v9"
)

func newRedisStores(client redis.UniversalClient, prefix string, retention time.Duration) Stores {
	return Stores{
		Pending:     redisPendingStore{store: stores.NewPendingStore(client, prefix, retention)},
		OTPs:        redisOTPStore{store: stores.NewOTPStore(client, prefix, retention)},
		Accounts:    redisAccountStore{store: stores.NewAccountStore(client, prefix)},
		Credentials: redisCredentialStore{store: stores.NewCredentialStore(client, prefix)},
	}
}

// NewRedisStores returns the Redis-backed implementation of every store.
// Builder.WithRedis uses the same set; this is exposed for deployments that
// mix backends through Builder.WithStores.
func NewRedisStores(client redis.UniversalClient, prefix string, retention time.Duration) Stores {
	return newRedisStores(client, prefix, retention)
}

func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrNotFound):
		return ErrRecordNotFound
	case errors.Is(err, stores.ErrAccountExists):
		return ErrAccountExists
	default:
		return err
	}
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

type redisPendingStore struct {
	store *stores.PendingStore
}

func (s redisPendingStore) UpsertPending(ctx context.Context, pending PendingRegistration) error {
	return mapStoreError(s.store.Upsert(ctx, &stores.PendingRecord{
		FirstName:    pending.FirstName,
		LastName:     pending.LastName,
		Email:        pending.Email,
		PasswordHash: pending.PasswordHash,
		UpdatedAt:    toUnixNano(pending.UpdatedAt),
	}))
}

func (s redisPendingStore) GetPending(ctx context.Context, email string) (*PendingRegistration, error) {
	rec, err := s.store.Get(ctx, email)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return &PendingRegistration{
		FirstName:    rec.FirstName,
		LastName:     rec.LastName,
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		UpdatedAt:    fromUnixNano(rec.UpdatedAt),
	}, nil
}

func (s redisPendingStore) DeletePending(ctx context.Context, email string) error {
	return mapStoreError(s.store.Delete(ctx, email))
}

type redisOTPStore struct {
	store *stores.OTPStore
}

func (s redisOTPStore) AppendOTP(ctx context.Context, record OTPRecord) error {
	return mapStoreError(s.store.Append(ctx, record.Email, stores.OTPEntry{
		Code:     record.Code,
		IssuedAt: toUnixNano(record.IssuedAt),
	}))
}

func (s redisOTPStore) LatestOTP(ctx context.Context, email string) (*OTPRecord, error) {
	entry, err := s.store.Latest(ctx, email)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return &OTPRecord{Email: email, Code: entry.Code, IssuedAt: fromUnixNano(entry.IssuedAt)}, nil
}

func (s redisOTPStore) ListOTPs(ctx context.Context, email string) ([]OTPRecord, error) {
	entries, err := s.store.List(ctx, email)
	if err != nil {
		return nil, mapStoreError(err)
	}
	out := make([]OTPRecord, 0, len(entries))
	for _, entry := range entries {
		out = append(out, OTPRecord{Email: email, Code: entry.Code, IssuedAt: fromUnixNano(entry.IssuedAt)})
	}
	return out, nil
}

func (s redisOTPStore) DeleteOTPs(ctx context.Context, email string) error {
	return mapStoreError(s.store.Delete(ctx, email))
}

type redisAccountStore struct {
	store *stores.AccountStore
}

func (s redisAccountStore) CreateAccountIfAbsent(ctx context.Context, account Account) error {
	return mapStoreError(s.store.CreateIfAbsent(ctx, &stores.AccountRecord{
		ID:           account.ID,
		FirstName:    account.FirstName,
		LastName:     account.LastName,
		Email:        account.Email,
		PasswordHash: account.PasswordHash,
		CreatedAt:    toUnixNano(account.CreatedAt),
	}))
}

func (s redisAccountStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	rec, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return accountFromRecord(rec), nil
}

func (s redisAccountStore) GetAccountByID(ctx context.Context, id string) (*Account, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return accountFromRecord(rec), nil
}

func accountFromRecord(rec *stores.AccountRecord) *Account {
	return &Account{
		ID:           rec.ID,
		FirstName:    rec.FirstName,
		LastName:     rec.LastName,
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		CreatedAt:    fromUnixNano(rec.CreatedAt),
	}
}

type redisCredentialStore struct {
	store *stores.CredentialStore
}

func (s redisCredentialStore) GetOrCreateCredential(ctx context.Context, candidate Credential) (*Credential, bool, error) {
	rec, created, err := s.store.GetOrCreate(ctx, &stores.CredentialRecord{
		AccountID: candidate.AccountID,
		Token:     candidate.Token,
		CreatedAt: toUnixNano(candidate.CreatedAt),
	})
	if err != nil {
		return nil, false, mapStoreError(err)
	}
	return credentialFromRecord(rec), created, nil
}

func (s redisCredentialStore) GetCredentialByToken(ctx context.Context, token string) (*Credential, error) {
	rec, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return credentialFromRecord(rec), nil
}

func credentialFromRecord(rec *stores.CredentialRecord) *Credential {
	return &Credential{
		AccountID: rec.AccountID,
		Token:     rec.Token,
		CreatedAt: fromUnixNano(rec.CreatedAt),
	}
}
