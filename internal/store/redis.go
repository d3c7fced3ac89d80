package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/koalychatbot/koaly-telegram-bot/internal/config"
	"github.com/koalychatbot/koaly-telegram-bot/internal/types"
)

// userKeyPrefix namespaces user records in the keyspace.
const userKeyPrefix = "koaly:user:"

// RedisStore implements UserStore with one JSON document per user id.
// Each Get/Save is a single command, so a record is never observed half
// written. Read-modify-write cycles rely on the chat service's per-user
// lock, the same discipline the other drivers assume.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the configured Redis instance.
func NewRedisStore(cfg config.StoreConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL.Unmask())
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// userKey returns the keyspace entry for a user id.
func userKey(id string) string {
	return userKeyPrefix + id
}

// Get retrieves the record for the given id.
func (s *RedisStore) Get(ctx context.Context, id string) (*types.UserRecord, error) {
	raw, err := s.client.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errNotFound(id)
		}
		return nil, errStore("get user", err)
	}
	return decodeRecord(raw)
}

// Create inserts a fresh record. SETNX preserves the no-overwrite contract.
func (s *RedisStore) Create(ctx context.Context, rec *types.UserRecord) error {
	raw, err := encodeRecord(rec)
	if err != nil {
		return errStore("encode user", err)
	}
	ok, err := s.client.SetNX(ctx, userKey(rec.ID), raw, 0).Result()
	if err != nil {
		return errStore("create user", err)
	}
	if !ok {
		return errStore("create user", errors.New("record already exists"))
	}
	return nil
}

// Save persists the full record as one SET.
func (s *RedisStore) Save(ctx context.Context, rec *types.UserRecord) error {
	raw, err := encodeRecord(rec)
	if err != nil {
		return errStore("encode user", err)
	}
	if err := s.client.Set(ctx, userKey(rec.ID), raw, 0).Err(); err != nil {
		return errStore("save user", err)
	}
	return nil
}

// ActivatePremium flips the user to premium, creating the record if needed.
// The watch/exec transaction retries on concurrent modification so the
// activation never clobbers fields written by another connection.
func (s *RedisStore) ActivatePremium(ctx context.Context, id string) (*types.UserRecord, error) {
	key := userKey(id)
	var result *types.UserRecord

	txn := func(tx *redis.Tx) error {
		rec := types.NewUserRecord(id)
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			if rec, err = decodeRecord(raw); err != nil {
				return err
			}
		case !errors.Is(err, redis.Nil):
			return err
		}
		rec.Premium = true

		encoded, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = rec
		return nil
	}

	// A handful of retries is plenty; contention on a single user is rare.
	for i := 0; i < 5; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, errStore("activate premium", err)
		}
	}
	return nil, errStore("activate premium", errors.New("too many concurrent modifications"))
}

// Ping reports backend reachability.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// encodeRecord serializes a record for storage.
func encodeRecord(rec *types.UserRecord) ([]byte, error) {
	return json.Marshal(rec)
}

// decodeRecord deserializes a stored record.
func decodeRecord(raw []byte) (*types.UserRecord, error) {
	var rec types.UserRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, errStore("decode user", err)
	}
	return &rec, nil
}

var _ UserStore = (*RedisStore)(nil)
