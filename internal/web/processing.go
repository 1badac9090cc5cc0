package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"vidshare/internal/jobs"
	"vidshare/internal/video"
)

type jobAccepted struct {
	JobId  string      `json:"job_id"`
	Status jobs.Status `json:"status"`
}

type jobResult struct {
	Message string `json:"message"`
	Id      int64  `json:"id"`
	File    string `json:"file"`
}

func (s *Server) handleTrim(w http.ResponseWriter, r *http.Request) {
	src, ok := s.videoFromPath(w, r)
	if !ok {
		return
	}

	var body struct {
		Start *float64 `json:"start"`
		End   *float64 `json:"end"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.sendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	duration, err := s.sourceDuration(r.Context(), src)
	if err != nil {
		slog.Warn("could not determine source duration", "video_id", src.Id, "error", err)
	}
	if fields := trimFields(body.Start, body.End, duration); len(fields) > 0 {
		s.sendValidationError(w, fields)
		return
	}

	s.submit(w, r, jobs.NewTrimJob(src.Id, *body.Start, *body.End), "Video trimmed")
}

// sourceDuration returns the recorded duration of v. Uploads that could not be
// probed are stored with duration 0; for those the stored object is probed
// again.
func (s *Server) sourceDuration(ctx context.Context, v *video.Video) (float64, error) {
	if v.Duration > 0 {
		return v.Duration, nil
	}
	if s.Processor == nil {
		return 0, errors.New("no media processor configured")
	}
	obj, err := s.Content.Open(ctx, v.File)
	if err != nil {
		return 0, err
	}
	defer obj.Body.Close()

	f, err := s.spool(obj.Body, v.File)
	if err != nil {
		return 0, err
	}
	defer os.Remove(f.Name())
	defer f.Close()
	return s.Processor.Probe(ctx, f.Name())
}

// trimFields enforces 0 <= start < end <= duration. A source without a known
// duration cannot be trimmed.
func trimFields(start, end *float64, duration float64) map[string]string {
	fields := map[string]string{}
	if start == nil {
		fields["start"] = "This field is required."
	}
	if end == nil {
		fields["end"] = "This field is required."
	}
	if len(fields) > 0 {
		return fields
	}

	switch {
	case *start < 0:
		fields["start"] = "Start time must not be negative."
	case *start >= *end:
		fields["end"] = "End time must be greater than start time."
	case duration <= 0:
		fields["end"] = "Video duration is unknown, so the end time cannot be validated."
	case *end > duration:
		fields["end"] = fmt.Sprintf("End time must not exceed the video duration (%gs).", duration)
	}
	return fields
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var body struct {
		VideoIds []int64 `json:"video_ids"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.sendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(body.VideoIds) < 2 {
		s.sendValidationError(w, map[string]string{"video_ids": "At least two videos are required to merge."})
		return
	}

	for _, id := range body.VideoIds {
		_, err := s.Videos.Read(r.Context(), id)
		if errors.Is(err, video.ErrNotFound) {
			s.sendJSONError(w, fmt.Sprintf("video %d not found", id), http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("failed to read video metadata", "video_id", id, "error", err)
			s.sendJSONError(w, "failed to read video metadata", http.StatusInternalServerError)
			return
		}
	}

	s.submit(w, r, jobs.NewMergeJob(body.VideoIds), "Videos merged")
}

// submit records the job and either queues it (202) or runs it inline (200).
func (s *Server) submit(w http.ResponseWriter, r *http.Request, job *jobs.Job, done string) {
	ctx := r.Context()
	log := slog.With("job_id", job.Id, "kind", job.Kind, "user", userFrom(ctx))

	if err := s.Jobs.Create(ctx, job); err != nil {
		log.Error("failed to record job", "error", err)
		s.sendJSONError(w, "failed to submit job", http.StatusInternalServerError)
		return
	}

	if !s.Sync {
		// workers may update job as soon as it is queued
		ack := jobAccepted{JobId: job.Id, Status: job.Status}
		if err := s.Queue.Enqueue(ctx, job); err != nil {
			log.Error("failed to enqueue job", "error", err)
			job.Status = jobs.StatusFailed
			job.Error = "enqueue failed"
			if uerr := s.Jobs.Update(ctx, job); uerr != nil {
				log.Error("failed to record enqueue failure", "error", uerr)
			}
			s.sendJSONError(w, "failed to submit job", http.StatusInternalServerError)
			return
		}
		log.Info("job queued")
		s.sendJSON(w, ack, http.StatusAccepted)
		return
	}

	if err := s.Runner.Run(ctx, job); err != nil {
		// the cause is on the job record; clients get a generic message
		s.sendJSONError(w, "video processing failed", http.StatusInternalServerError)
		return
	}
	out, err := s.Videos.Read(ctx, job.ResultVideoId)
	if err != nil {
		log.Error("failed to read job output", "video_id", job.ResultVideoId, "error", err)
		s.sendJSONError(w, "failed to read job output", http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, jobResult{Message: done, Id: out.Id, File: out.File}, http.StatusOK)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.Jobs.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, jobs.ErrJobNotFound) {
		s.sendJSONError(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("failed to read job", "job_id", r.PathValue("id"), "error", err)
		s.sendJSONError(w, "failed to read job", http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, job, http.StatusOK)
}
