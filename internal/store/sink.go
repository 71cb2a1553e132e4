package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/miravex/cinerec/pkg/models"
)

// ResultSink persists the ordered per-user recommendation list. Records for
// different users live under disjoint keys, so the parallel scoring loop has
// no write-write races.
type ResultSink interface {
	Write(ctx context.Context, userID string, recs []models.Recommendation) error
	Read(ctx context.Context, userID string) ([]models.Recommendation, error)
}

// FileSink writes one JSON file per user under a directory.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sink directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

func (s *FileSink) Write(ctx context.Context, userID string, recs []models.Recommendation) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("failed to encode recommendations: %w", err)
	}

	// Write-then-rename keeps readers from seeing a half-written file.
	final := s.path(userID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write recommendations: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to finalize recommendations: %w", err)
	}
	return nil
}

func (s *FileSink) Read(ctx context.Context, userID string) ([]models.Recommendation, error) {
	data, err := os.ReadFile(s.path(userID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read recommendations: %w", err)
	}

	var recs []models.Recommendation
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("failed to decode recommendations: %w", err)
	}
	return recs, nil
}

func (s *FileSink) path(userID string) string {
	return filepath.Join(s.dir, filepath.Base(userID)+".json")
}

// RedisSink keeps the same records in Redis for low-latency serving.
type RedisSink struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSink(client *redis.Client, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, ttl: ttl}
}

func (s *RedisSink) Write(ctx context.Context, userID string, recs []models.Recommendation) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("failed to encode recommendations: %w", err)
	}
	if err := s.client.Set(ctx, sinkKey(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store recommendations: %w", err)
	}
	return nil
}

func (s *RedisSink) Read(ctx context.Context, userID string) ([]models.Recommendation, error) {
	data, err := s.client.Get(ctx, sinkKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recommendations: %w", err)
	}

	var recs []models.Recommendation
	if err := json.Unmarshal([]byte(data), &recs); err != nil {
		return nil, fmt.Errorf("failed to decode recommendations: %w", err)
	}
	return recs, nil
}

func sinkKey(userID string) string {
	return "recs:" + userID
}

// TieredSink writes to every sink and reads from the first that has data.
// The usual layout is Redis first for serving, files second as the durable
// copy.
type TieredSink struct {
	sinks []ResultSink
}

func NewTieredSink(sinks ...ResultSink) *TieredSink {
	return &TieredSink{sinks: sinks}
}

func (s *TieredSink) Write(ctx context.Context, userID string, recs []models.Recommendation) error {
	for _, sink := range s.sinks {
		if err := sink.Write(ctx, userID, recs); err != nil {
			return err
		}
	}
	return nil
}

func (s *TieredSink) Read(ctx context.Context, userID string) ([]models.Recommendation, error) {
	for _, sink := range s.sinks {
		recs, err := sink.Read(ctx, userID)
		if err != nil {
			return nil, err
		}
		if recs != nil {
			return recs, nil
		}
	}
	return nil, nil
}
