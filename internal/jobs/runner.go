package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"vidshare/internal/content"
	"vidshare/internal/media"
	"vidshare/internal/video"
)

// Runner executes trim and merge jobs: it stages the source files from the
// content store into a temp dir, runs the media processor, stores the result
// and records it as a new video.
type Runner struct {
	Videos    video.MetadataService
	Content   content.Store
	Processor media.Processor
	Jobs      Store

	// TempDir is where sources are staged; empty means os.TempDir().
	TempDir string
}

// Run executes one delivery of job. The stored record is authoritative; the
// passed job only identifies it.
func (r *Runner) Run(ctx context.Context, job *Job) error {
	current, err := r.Jobs.Get(ctx, job.Id)
	if err != nil {
		return fmt.Errorf("load job %s: %w", job.Id, err)
	}

	log := slog.With("job_id", current.Id, "kind", current.Kind)
	if current.Status == StatusSucceeded {
		log.Info("job already succeeded, skipping redelivery")
		*job = *current
		return nil
	}

	current.Status = StatusRunning
	current.Attempts++
	current.Error = ""
	if err := r.Jobs.Update(ctx, current); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}

	result, runErr := r.execute(ctx, current)
	if runErr != nil {
		log.Error("job failed", "attempt", current.Attempts, "error", runErr)
		current.Status = StatusFailed
		current.Error = runErr.Error()
		if err := r.Jobs.Update(ctx, current); err != nil {
			log.Error("failed to record job failure", "error", err)
		}
		*job = *current
		return runErr
	}

	current.Status = StatusSucceeded
	current.ResultVideoId = result.Id
	if err := r.Jobs.Update(ctx, current); err != nil {
		return fmt.Errorf("mark job succeeded: %w", err)
	}
	log.Info("job succeeded", "result_video_id", result.Id)
	*job = *current
	return nil
}

func (r *Runner) execute(ctx context.Context, job *Job) (*video.Video, error) {
	tmp, err := os.MkdirTemp(r.TempDir, "job-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	switch job.Kind {
	case KindTrim:
		return r.trim(ctx, tmp, job)
	case KindMerge:
		return r.merge(ctx, tmp, job)
	default:
		return nil, fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func (r *Runner) trim(ctx context.Context, tmp string, job *Job) (*video.Video, error) {
	src, err := r.Videos.Read(ctx, job.VideoId)
	if err != nil {
		return nil, fmt.Errorf("read source video %d: %w", job.VideoId, err)
	}
	if job.Start < 0 || job.Start >= job.End {
		return nil, fmt.Errorf("invalid range %v-%v", job.Start, job.End)
	}

	local, err := r.stage(ctx, tmp, 0, src.File)
	if err != nil {
		return nil, err
	}

	out := filepath.Join(tmp, "trimmed.mp4")
	if err := r.Processor.Trim(ctx, local, out, job.Start, job.End); err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s/trimmed_%s.mp4", content.UploadPrefix, job.Id)
	return r.publish(ctx, out, name, video.NewVideo{IsTrimmed: true})
}

func (r *Runner) merge(ctx context.Context, tmp string, job *Job) (*video.Video, error) {
	if len(job.VideoIds) < 2 {
		return nil, errors.New("merge needs at least two videos")
	}

	locals := make([]string, 0, len(job.VideoIds))
	for i, id := range job.VideoIds {
		src, err := r.Videos.Read(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read source video %d: %w", id, err)
		}
		local, err := r.stage(ctx, tmp, i, src.File)
		if err != nil {
			return nil, err
		}
		locals = append(locals, local)
	}

	out := filepath.Join(tmp, "merged.mp4")
	if err := r.Processor.Merge(ctx, locals, out); err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s/merged_%s.mp4", content.UploadPrefix, job.Id)
	return r.publish(ctx, out, name, video.NewVideo{IsMerged: true})
}

// stage copies a stored object into dir. The index prefix keeps repeated
// sources distinct.
func (r *Runner) stage(ctx context.Context, dir string, index int, name string) (string, error) {
	obj, err := r.Content.Open(ctx, name)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", name, err)
	}
	defer obj.Body.Close()

	local := filepath.Join(dir, fmt.Sprintf("%02d_%s", index, path.Base(name)))
	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("create local file: %w", err)
	}
	if _, err := io.Copy(f, obj.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("copy %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close local file: %w", err)
	}
	return local, nil
}

func (r *Runner) publish(ctx context.Context, local, name string, nv video.NewVideo) (*video.Video, error) {
	f, err := os.Open(local)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat output: %w", err)
	}

	duration, err := r.Processor.Probe(ctx, local)
	if err != nil {
		slog.Warn("could not probe output duration", "file", name, "error", err)
	}

	if err := r.Content.Write(ctx, name, f, info.Size()); err != nil {
		return nil, fmt.Errorf("store output: %w", err)
	}

	// a redelivery after the row was created but before the job was marked
	// succeeded reuses that row
	existing, err := r.Videos.ReadByFile(ctx, name)
	if err == nil {
		slog.Info("reusing video recorded by an earlier attempt", "video_id", existing.Id, "file", name)
		return existing, nil
	}
	if !errors.Is(err, video.ErrNotFound) {
		return nil, fmt.Errorf("look up output video: %w", err)
	}

	nv.Title = path.Base(name)
	nv.File = name
	nv.FileSize = info.Size()
	nv.Duration = duration
	return r.Videos.Create(ctx, nv)
}
