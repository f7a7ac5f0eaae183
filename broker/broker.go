// Package broker is the Redis task queue between the upload API and the
// pipeline workers. Jobs are JSON blobs on a list; workers block-pop them.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/streamforge/vodflow/errors"
	"github.com/xeipuuv/gojsonschema"
)

// Job is one unit of pipeline work. The workflow handle is minted at publish
// time and persisted on the video row so pollers can correlate the two.
type Job struct {
	VideoID        string `json:"video_id"`
	OwnerID        string `json:"owner_id"`
	RawSourceKey   string `json:"raw_source_key"`
	WorkflowHandle string `json:"workflow_handle"`
	EnqueuedAt     int64  `json:"enqueued_at"`
}

const jobSchema = `{
	"type": "object",
	"properties": {
		"video_id": { "type": "string", "minLength": 1 },
		"owner_id": { "type": "string", "minLength": 1 },
		"raw_source_key": { "type": "string", "minLength": 1 },
		"workflow_handle": { "type": "string", "minLength": 1 },
		"enqueued_at": { "type": "integer" }
	},
	"required": ["video_id", "owner_id", "raw_source_key", "workflow_handle"],
	"additionalProperties": false
}`

type Broker struct {
	client *redis.Client
	queue  string
	schema *gojsonschema.Schema
}

func NewBroker(addr, password string, db int, queue string) (*Broker, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(jobSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile job schema: %w", err)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Broker{client: client, queue: queue, schema: schema}, nil
}

// Ping verifies the Redis connection at startup.
func (b *Broker) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping broker at %s: %w", b.client.Options().Addr, err)
	}
	return nil
}

func (b *Broker) Close() error {
	return b.client.Close()
}

// Publish validates and enqueues a job, minting its workflow handle. Returns
// the handle so the caller can persist it on the video row.
func (b *Broker) Publish(ctx context.Context, videoID, ownerID, rawSourceKey string) (string, error) {
	job := Job{
		VideoID:        videoID,
		OwnerID:        ownerID,
		RawSourceKey:   rawSourceKey,
		WorkflowHandle: uuid.New().String(),
		EnqueuedAt:     time.Now().Unix(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to serialize job for video %q: %w", videoID, err)
	}
	if err := b.validate(payload); err != nil {
		return "", err
	}
	if err := b.client.LPush(ctx, b.queue, payload).Err(); err != nil {
		return "", errors.TransientIO(fmt.Errorf("failed to enqueue job for video %q: %w", videoID, err))
	}
	return job.WorkflowHandle, nil
}

// Consume block-pops the next job, waiting up to pollTimeout. Returns nil
// when the queue stayed empty for the whole window.
func (b *Broker) Consume(ctx context.Context, pollTimeout time.Duration) (*Job, error) {
	res, err := b.client.BRPop(ctx, pollTimeout, b.queue).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.TransientIO(fmt.Errorf("failed to pop from queue %q: %w", b.queue, err))
	}
	// BRPop returns [queue, payload]
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of length %d", len(res))
	}
	payload := []byte(res[1])
	if err := b.validate(payload); err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, errors.Validation("failed to parse job payload: %s", err)
	}
	return &job, nil
}

// Len reports the queue depth.
func (b *Broker) Len(ctx context.Context) (int64, error) {
	return b.client.LLen(ctx, b.queue).Result()
}

func (b *Broker) validate(payload []byte) error {
	result, err := b.schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return errors.Validation("failed to validate job payload: %s", err)
	}
	if !result.Valid() {
		return errors.Validation("invalid job payload: %s", result.Errors())
	}
	return nil
}
