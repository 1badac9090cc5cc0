// Package jobs moves trim and merge work out of the request path. A handler
// records a Job in a Store, submits it to a Queue and returns the job id; a
// Runner picks it up on the other side of the queue.
//
// Delivery is at-least-once. Runner.Run skips jobs that already succeeded and
// names its output after the job id, so a redelivered job overwrites its own
// output instead of producing a second file.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindTrim  Kind = "trim"
	KindMerge Kind = "merge"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var ErrJobNotFound = errors.New("job not found")

type Job struct {
	Id            string    `json:"id" dynamodbav:"id"`
	Kind          Kind      `json:"kind" dynamodbav:"kind"`
	VideoId       int64     `json:"video_id,omitempty" dynamodbav:"videoId,omitempty"`
	Start         float64   `json:"start,omitempty" dynamodbav:"start,omitempty"`
	End           float64   `json:"end,omitempty" dynamodbav:"end,omitempty"`
	VideoIds      []int64   `json:"video_ids,omitempty" dynamodbav:"videoIds,omitempty"`
	Status        Status    `json:"status" dynamodbav:"status"`
	Attempts      int       `json:"attempts" dynamodbav:"attempts"`
	ResultVideoId int64     `json:"result_video_id,omitempty" dynamodbav:"resultVideoId,omitempty"`
	Error         string    `json:"error,omitempty" dynamodbav:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at" dynamodbav:"createdAt"`
	UpdatedAt     time.Time `json:"updated_at" dynamodbav:"updatedAt"`
}

func NewTrimJob(videoId int64, start, end float64) *Job {
	return newJob(&Job{Kind: KindTrim, VideoId: videoId, Start: start, End: end})
}

func NewMergeJob(videoIds []int64) *Job {
	return newJob(&Job{Kind: KindMerge, VideoIds: append([]int64(nil), videoIds...)})
}

func newJob(j *Job) *Job {
	now := time.Now().UTC()
	j.Id = uuid.NewString()
	j.Status = StatusQueued
	j.CreatedAt = now
	j.UpdatedAt = now
	return j
}

type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, job *Job) error
}

// Queue is the submission side of the job boundary.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
}

// Handler executes one delivery of a job.
type Handler func(ctx context.Context, job *Job) error
