// Package media wraps ffprobe and ffmpeg for the few operations the service
// needs: reading a duration, trimming a range and concatenating clips.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

type Processor interface {
	Probe(ctx context.Context, path string) (float64, error)
	Trim(ctx context.Context, src, dst string, start, end float64) error
	Merge(ctx context.Context, srcs []string, dst string) error
}

// FFmpeg implements Processor by running the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
}

var _ Processor = (*FFmpeg)(nil)

func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

// Probe returns the container duration in seconds.
func (f *FFmpeg) Probe(ctx context.Context, path string) (float64, error) {
	// -v error: hide logs except errors
	// -show_entries format=duration: only get the duration
	cmd := exec.CommandContext(ctx, f.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, &CommandError{Tool: "ffprobe", Err: err, Output: stderr.String()}
	}

	return ParseDuration(out.String())
}

// ParseDuration parses ffprobe's duration output, e.g. "120.450000".
func ParseDuration(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, errors.New("duration not available")
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %v", d)
	}
	return d, nil
}

func (f *FFmpeg) Trim(ctx context.Context, src, dst string, start, end float64) error {
	return f.run(ctx, TrimArgs(src, dst, start, end))
}

// Merge concatenates srcs in order. The concat demuxer reads a list file,
// and the output is re-encoded so inputs with different encodings still join.
func (f *FFmpeg) Merge(ctx context.Context, srcs []string, dst string) error {
	if len(srcs) < 2 {
		return errors.New("merge needs at least two inputs")
	}

	list, err := os.CreateTemp(filepath.Dir(dst), "concat-*.txt")
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	defer os.Remove(list.Name())

	if _, err := list.WriteString(ConcatList(srcs)); err != nil {
		list.Close()
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	if err := list.Close(); err != nil {
		return fmt.Errorf("failed to close concat list: %w", err)
	}

	return f.run(ctx, MergeArgs(list.Name(), dst))
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.FFmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &CommandError{Tool: "ffmpeg", Err: err, Output: string(output)}
	}
	return nil
}

func TrimArgs(src, dst string, start, end float64) []string {
	return []string{
		"-y",
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", src,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		dst,
	}
}

func MergeArgs(listPath, dst string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		dst,
	}
}

// ConcatList renders the concat demuxer input file for paths.
func ConcatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// CommandError carries the tool output of a failed invocation. Error()
// keeps only the tail so log lines stay readable.
type CommandError struct {
	Tool   string
	Err    error
	Output string
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Output)
	if len(out) > 512 {
		out = "..." + out[len(out)-512:]
	}
	if out == "" {
		return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s failed: %v: %s", e.Tool, e.Err, out)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
