// Package redis provides a Redis/Valkey implementation of the meeting store
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Consult/internal/config"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds optimistic transaction retries under contention.
const maxTxRetries = 100

var ErrConflict = errors.New("meeting update kept conflicting")

// Repository stores each meeting as one JSON document keyed by room.
type Repository struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

var _ core.MeetingStore = (*Repository)(nil)

// NewRepository creates a new Redis repository
func NewRepository(cfg config.RedisConfig) (*Repository, error) {
	var client *redis.Client

	if cfg.URI != "" {
		opt, err := redis.ParseURL(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URI: %w", err)
		}
		if opt.DB == 0 {
			opt.DB = cfg.DB
		}
		if opt.Password == "" && cfg.Password != "" {
			opt.Password = cfg.Password
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Repository{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.MeetingTTL,
	}, nil
}

func (r *Repository) Close() error {
	return r.client.Close()
}

func (r *Repository) meetingKey(roomID domain.RoomID) string {
	return fmt.Sprintf("%smeetings:%s", r.keyPrefix, roomID)
}

// CreateMeeting relies on SETNX: the room id is derived from the appointment
// id, so the key itself enforces one record per appointment.
func (r *Repository) CreateMeeting(ctx context.Context, m *domain.Meeting) (*domain.Meeting, bool, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal meeting: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.meetingKey(m.RoomID), data, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to save meeting: %w", err)
	}
	if !ok {
		existing, err := r.GetMeetingByRoom(ctx, m.RoomID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return m.Clone(), true, nil
}

func (r *Repository) GetMeetingByRoom(ctx context.Context, roomID domain.RoomID) (*domain.Meeting, error) {
	data, err := r.client.Get(ctx, r.meetingKey(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}
	return decode(data)
}

// UpdateMeeting runs fn inside a WATCH/MULTI transaction and retries when a
// concurrent writer touched the record first.
func (r *Repository) UpdateMeeting(ctx context.Context, roomID domain.RoomID, fn func(*domain.Meeting) error) (*domain.Meeting, error) {
	key := r.meetingKey(roomID)
	for i := 0; i < maxTxRetries; i++ {
		var out *domain.Meeting
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return core.ErrNotFound
				}
				return fmt.Errorf("failed to get meeting: %w", err)
			}
			m, err := decode(data)
			if err != nil {
				return err
			}
			if err := fn(m); err != nil {
				return err
			}
			b, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("failed to marshal meeting: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.SetArgs(ctx, key, b, redis.SetArgs{KeepTTL: true})
				return nil
			})
			out = m
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, ErrConflict
}

func decode(data []byte) (*domain.Meeting, error) {
	var m domain.Meeting
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal meeting: %w", err)
	}
	if m.Participants == nil {
		m.Participants = []domain.MeetingParticipant{}
	}
	return &m, nil
}
