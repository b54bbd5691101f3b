// Package video drives ffmpeg: raw RGBA frames go in over stdin, an encoded
// and muxed file comes out.
package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/ivlev/slides2video/internal/audio"
	"github.com/ivlev/slides2video/internal/config"
	"github.com/ivlev/slides2video/internal/fault"
	"github.com/ivlev/slides2video/internal/logging"
	"github.com/ivlev/slides2video/internal/segment"
)

// Encoder launches ffmpeg jobs with a fixed binary and codec choice.
type Encoder struct {
	ffmpegPath string
	codec      string
	log        *slog.Logger
}

func New(ffmpegPath, codec string, log *slog.Logger) *Encoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if codec == "" {
		codec = "libx264"
	}
	return &Encoder{ffmpegPath: ffmpegPath, codec: codec, log: logging.Or(log)}
}

// BestH264Encoder probes the ffmpeg build for hardware H.264 encoders and
// falls back to libx264.
func BestH264Encoder(ffmpegPath string) string {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	out, err := exec.Command(ffmpegPath, "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(string(out), name) {
			return name
		}
	}
	return "libx264"
}

// EncodeSpec describes one encoding job.
type EncodeSpec struct {
	Width   int
	Height  int
	FPS     int
	Profile config.Profile
	Audio   audio.MixSpec
	// OutPath should point at a temporary location; publishing the finished
	// file is the caller's concern.
	OutPath string
}

// Job is a running ffmpeg process consuming raw RGBA frames.
type Job struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
}

// Start builds the argument list for spec and launches ffmpeg. Frames are
// then streamed with WriteFrame and the job finished with Close.
func (e *Encoder) Start(ctx context.Context, spec EncodeSpec) (*Job, error) {
	args := e.buildArgs(spec)
	e.log.Debug("starting encoder", "codec", e.codec, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	job := &Job{cmd: cmd}
	cmd.Stderr = &job.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fault.Wrap(fault.ErrEncode, "encode", "stdin pipe", err)
	}
	job.stdin = stdin

	if err := cmd.Start(); err != nil {
		return nil, fault.Wrap(fault.ErrEncode, "encode", e.ffmpegPath, err)
	}
	return job, nil
}

func (e *Encoder) buildArgs(spec EncodeSpec) []string {
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", spec.Width, spec.Height),
		"-framerate", fmt.Sprintf("%d", spec.FPS),
		"-i", "-",
	}

	audioArgs, filter, label := spec.Audio.Graph(1)
	args = append(args, audioArgs...)
	if filter != "" {
		args = append(args, "-filter_complex", filter)
	}

	args = append(args, "-map", "0:v")
	if label != "" {
		args = append(args, "-map", label, "-shortest")
	}

	args = append(args, "-c:v", e.codec, "-pix_fmt", "yuv420p")
	switch e.codec {
	case "h264_videotoolbox":
		args = append(args, "-b:v", fmt.Sprintf("%dk", spec.Profile.BitrateK))
	case "h264_nvenc":
		args = append(args, "-cq", fmt.Sprintf("%d", spec.Profile.CRF))
	default: // libx264
		args = append(args, "-crf", fmt.Sprintf("%d", spec.Profile.CRF), "-preset", "medium")
	}

	args = append(args, "-r", fmt.Sprintf("%d", spec.FPS), spec.OutPath)
	return args
}

// WriteFrame streams one frame to the encoder as packed RGBA.
func (j *Job) WriteFrame(img image.Image) error {
	rgba := segment.ToRGBA(img)
	if _, err := j.stdin.Write(rgba.Pix); err != nil {
		return fault.Wrap(fault.ErrEncode, "encode", "write frame", err)
	}
	return nil
}

// Close signals end of stream and waits for ffmpeg to finish the file.
func (j *Job) Close() error {
	j.stdin.Close()
	if err := j.cmd.Wait(); err != nil {
		return fault.Wrap(fault.ErrEncode, "encode", tail(j.stderr.String()), err)
	}
	return nil
}

// Abort kills the encoder without waiting for a clean finish.
func (j *Job) Abort() {
	j.stdin.Close()
	if j.cmd.Process != nil {
		j.cmd.Process.Kill()
	}
	j.cmd.Wait()
}

// tail trims ffmpeg's chatter down to the part that usually explains a
// failure.
func tail(s string) string {
	s = strings.TrimSpace(s)
	const keep = 800
	if len(s) > keep {
		s = "..." + s[len(s)-keep:]
	}
	return s
}
