package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notewell/meeting-recorder/internal/meeting"
)

const (
	meetingKeyPrefix    = "meeting:"
	transcriptKeySuffix = ":transcript"
	meetingIndexKey     = "meetings"
	activeMeetingKey    = "meeting:active"
)

// RedisStore is a MeetingStore backed by Redis. The meeting document
// (sans transcript) lives in a JSON string key; the transcript is a
// Redis list, so concurrent appends from different speakers are atomic
// on the server side without any client locking.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client}, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping reports whether the store is reachable. Used by readiness.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// CreateMeeting inserts a new meeting document and marks it active.
func (s *RedisStore) CreateMeeting(ctx context.Context, m *meeting.Meeting) error {
	doc := *m
	doc.Transcript = nil

	data, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode meeting %s: %w", m.ID, err)
	}

	ok, err := s.client.SetNX(ctx, meetingKeyPrefix+m.ID, data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create meeting %s: %w", m.ID, err)
	}
	if !ok {
		return ErrAlreadyExists
	}

	if err := s.client.SAdd(ctx, meetingIndexKey, m.ID).Err(); err != nil {
		return fmt.Errorf("failed to index meeting %s: %w", m.ID, err)
	}
	if err := s.client.Set(ctx, activeMeetingKey, m.ID, 0).Err(); err != nil {
		return fmt.Errorf("failed to mark meeting %s active: %w", m.ID, err)
	}
	return nil
}

// GetMeeting fetches the document and its transcript list.
func (s *RedisStore) GetMeeting(ctx context.Context, id string) (*meeting.Meeting, error) {
	data, err := s.client.Get(ctx, meetingKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read meeting %s: %w", id, err)
	}

	var m meeting.Meeting
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode meeting %s: %w", id, err)
	}

	raw, err := s.client.LRange(ctx, meetingKeyPrefix+id+transcriptKeySuffix, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript for meeting %s: %w", id, err)
	}
	for _, item := range raw {
		var entry meeting.TranscriptEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode transcript entry for meeting %s: %w", id, err)
		}
		m.Transcript = append(m.Transcript, entry)
	}
	return &m, nil
}

// FindActiveMeeting resolves the active-meeting pointer.
func (s *RedisStore) FindActiveMeeting(ctx context.Context) (*meeting.Meeting, error) {
	id, err := s.client.Get(ctx, activeMeetingKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve active meeting: %w", err)
	}
	return s.GetMeeting(ctx, id)
}

// AddAttendee grows the roster; duplicates are ignored.
func (s *RedisStore) AddAttendee(ctx context.Context, meetingID string, p meeting.Participant) error {
	return s.updateDocument(ctx, meetingID, func(m *meeting.Meeting) {
		m.AddAttendee(p)
	})
}

// AppendTranscript pushes one JSON entry onto the transcript list.
// RPUSH is atomic, so interleaved speakers never clobber each other.
func (s *RedisStore) AppendTranscript(ctx context.Context, meetingID string, entry meeting.TranscriptEntry) error {
	exists, err := s.client.Exists(ctx, meetingKeyPrefix+meetingID).Result()
	if err != nil {
		return fmt.Errorf("failed to check meeting %s: %w", meetingID, err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("failed to encode transcript entry: %w", err)
	}
	if err := s.client.RPush(ctx, meetingKeyPrefix+meetingID+transcriptKeySuffix, data).Err(); err != nil {
		return fmt.Errorf("failed to append transcript to meeting %s: %w", meetingID, err)
	}
	return nil
}

// SetEndTime closes the meeting and clears the active pointer if it
// still points at this meeting.
func (s *RedisStore) SetEndTime(ctx context.Context, meetingID string, end time.Time) error {
	err := s.updateDocument(ctx, meetingID, func(m *meeting.Meeting) {
		t := end
		m.EndTime = &t
	})
	if err != nil {
		return err
	}

	current, err := s.client.Get(ctx, activeMeetingKey).Result()
	if err == nil && current == meetingID {
		if err := s.client.Del(ctx, activeMeetingKey).Err(); err != nil {
			return fmt.Errorf("failed to clear active meeting pointer: %w", err)
		}
	}
	return nil
}

// SetSummary attaches the post-call title and summary.
func (s *RedisStore) SetSummary(ctx context.Context, meetingID, title, summary string) error {
	return s.updateDocument(ctx, meetingID, func(m *meeting.Meeting) {
		m.Title = title
		m.Summary = summary
	})
}

// ListMeetings loads every indexed meeting.
func (s *RedisStore) ListMeetings(ctx context.Context) ([]*meeting.Meeting, error) {
	ids, err := s.client.SMembers(ctx, meetingIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}

	out := make([]*meeting.Meeting, 0, len(ids))
	for _, id := range ids {
		m, err := s.GetMeeting(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue // index can briefly lead the documents
		}
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// updateDocument applies a read-modify-write on the meeting document.
// Document fields are only ever written by the single session that
// owns the call, so no server-side locking is needed here.
func (s *RedisStore) updateDocument(ctx context.Context, meetingID string, mutate func(*meeting.Meeting)) error {
	data, err := s.client.Get(ctx, meetingKeyPrefix+meetingID).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read meeting %s: %w", meetingID, err)
	}

	var m meeting.Meeting
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to decode meeting %s: %w", meetingID, err)
	}

	mutate(&m)

	updated, err := json.Marshal(&m)
	if err != nil {
		return fmt.Errorf("failed to encode meeting %s: %w", meetingID, err)
	}
	if err := s.client.Set(ctx, meetingKeyPrefix+meetingID, updated, 0).Err(); err != nil {
		return fmt.Errorf("failed to update meeting %s: %w", meetingID, err)
	}
	return nil
}
