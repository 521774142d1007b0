package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/auctionkiosk/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DraftStore implements domain.DraftStore with one JSON value per session.
// Secret fields are tagged out of the session's JSON form, so they never
// reach Redis.
//
// Key schema:
//
//	kiosk:draft:{id} - JSON session, expires after the configured session TTL
type DraftStore struct {
	rdb *redis.Client
}

// NewDraftStore creates a DraftStore backed by the given Client.
func NewDraftStore(c *Client) *DraftStore {
	return &DraftStore{rdb: c.Underlying()}
}

func draftKey(id string) string { return "kiosk:draft:" + id }

// Save writes the session, replacing any previous draft and resetting its
// TTL.
func (ds *DraftStore) Save(ctx context.Context, sess *domain.Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redis: marshal draft %s: %w", sess.ID, err)
	}
	if err := ds.rdb.Set(ctx, draftKey(sess.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: save draft %s: %w", sess.ID, err)
	}
	return nil
}

// Load reads a draft. It returns domain.ErrNotFound when none exists.
func (ds *DraftStore) Load(ctx context.Context, id string) (*domain.Session, error) {
	data, err := ds.rdb.Get(ctx, draftKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: load draft %s: %w", id, err)
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("redis: unmarshal draft %s: %w", id, err)
	}
	return &sess, nil
}

// Delete removes a draft. Deleting a missing draft is not an error.
func (ds *DraftStore) Delete(ctx context.Context, id string) error {
	if err := ds.rdb.Del(ctx, draftKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: delete draft %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.DraftStore = (*DraftStore)(nil)
