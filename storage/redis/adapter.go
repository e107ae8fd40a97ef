package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sig-0/p2panel/market"
	"github.com/sig-0/p2panel/storage"
)

const (
	snapshotKey = "p2panel:last_snapshot"
	inputsKey   = "p2panel:inputs"
	anchorKey   = "p2panel:cooldown_anchor"
)

// snapshotTTL bounds how long a stale last-good snapshot is
// worth restoring after a failed refresh
const snapshotTTL = time.Hour * 24

// Storage is the Redis persistence adapter, storing the panel state
// as JSON blobs under fixed keys
type Storage struct {
	client *redis.Client
}

// NewStorage connects to Redis and verifies the connection
func NewStorage(ctx context.Context, addr, password string, db int) (*Storage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	return &Storage{
		client: client,
	}, nil
}

// Close releases the underlying Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) SaveSnapshot(ctx context.Context, snapshot *market.PriceSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("unable to marshal snapshot: %w", err)
	}

	if err := s.client.Set(ctx, snapshotKey, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("unable to save snapshot: %w", err)
	}

	return nil
}

func (s *Storage) LastSnapshot(ctx context.Context) (*market.PriceSnapshot, error) {
	data, err := s.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("unable to fetch snapshot: %w", err)
	}

	var snapshot market.PriceSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unable to unmarshal snapshot: %w", err)
	}

	return &snapshot, nil
}

func (s *Storage) SaveInputs(ctx context.Context, inputs *market.Inputs) error {
	data, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("unable to marshal inputs: %w", err)
	}

	if err := s.client.Set(ctx, inputsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("unable to save inputs: %w", err)
	}

	return nil
}

func (s *Storage) Inputs(ctx context.Context) (*market.Inputs, error) {
	data, err := s.client.Get(ctx, inputsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("unable to fetch inputs: %w", err)
	}

	var inputs market.Inputs
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("unable to unmarshal inputs: %w", err)
	}

	return &inputs, nil
}

func (s *Storage) SaveCooldownAnchor(ctx context.Context, anchor time.Time) error {
	value := strconv.FormatInt(anchor.UTC().UnixMilli(), 10)

	// The anchor is only meaningful while a cooldown window could
	// still be open, so it expires on its own
	if err := s.client.Set(ctx, anchorKey, value, time.Hour).Err(); err != nil {
		return fmt.Errorf("unable to save cooldown anchor: %w", err)
	}

	return nil
}

func (s *Storage) CooldownAnchor(ctx context.Context) (time.Time, error) {
	value, err := s.client.Get(ctx, anchorKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, storage.ErrNotFound
		}

		return time.Time{}, fmt.Errorf("unable to fetch cooldown anchor: %w", err)
	}

	millis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse cooldown anchor: %w", err)
	}

	return time.UnixMilli(millis).UTC(), nil
}
