package video

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/ivlev/slides2video/internal/audio"
	"github.com/ivlev/slides2video/internal/config"
)

func mediumSpec() EncodeSpec {
	profile, _ := config.ProfileFor("medium")
	return EncodeSpec{
		Width:   1280,
		Height:  720,
		FPS:     30,
		Profile: profile,
		OutPath: "/tmp/out.mp4",
	}
}

func TestBuildArgsVideoOnly(t *testing.T) {
	e := New("ffmpeg", "libx264", nil)
	args := strings.Join(e.buildArgs(mediumSpec()), " ")

	for _, want := range []string{
		"-f rawvideo -pixel_format rgba -video_size 1280x720 -framerate 30 -i -",
		"-map 0:v",
		"-c:v libx264 -pix_fmt yuv420p -crf 23 -preset medium",
		"-r 30 /tmp/out.mp4",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q:\n%s", want, args)
		}
	}
	for _, reject := range []string{"-shortest", "-filter_complex"} {
		if strings.Contains(args, reject) {
			t.Errorf("video-only args must not carry %q:\n%s", reject, args)
		}
	}
}

func TestBuildArgsQualityPerCodec(t *testing.T) {
	tests := []struct {
		codec string
		want  string
	}{
		{"h264_videotoolbox", "-b:v 2500k"},
		{"h264_nvenc", "-cq 23"},
		{"libx264", "-crf 23 -preset medium"},
	}
	for _, tc := range tests {
		e := New("ffmpeg", tc.codec, nil)
		args := strings.Join(e.buildArgs(mediumSpec()), " ")
		if !strings.Contains(args, tc.want) {
			t.Errorf("%s: args missing %q:\n%s", tc.codec, tc.want, args)
		}
	}
}

func TestBuildArgsWithAudio(t *testing.T) {
	spec := mediumSpec()
	spec.Audio = audio.MixSpec{
		Tracks: []audio.Track{{Path: "voice.mp3", Offset: 0, Window: 4}},
		Total:  4,
	}
	e := New("ffmpeg", "libx264", nil)
	args := strings.Join(e.buildArgs(spec), " ")

	for _, want := range []string{
		"-i voice.mp3",
		"-filter_complex",
		"-map [a0] -shortest",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q:\n%s", want, args)
		}
	}
}

func TestBestH264Encoder(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stub executables need a shell")
	}
	write := func(script string) string {
		path := filepath.Join(t.TempDir(), "ffmpeg")
		if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
			t.Fatal(err)
		}
		return path
	}

	nvenc := write(`echo " V..... h264_nvenc           NVIDIA NVENC H.264 encoder"`)
	if got := BestH264Encoder(nvenc); got != "h264_nvenc" {
		t.Errorf("got %q, want h264_nvenc", got)
	}

	plain := write(`echo " V..... libx264              libx264 H.264"`)
	if got := BestH264Encoder(plain); got != "libx264" {
		t.Errorf("got %q, want libx264", got)
	}

	if got := BestH264Encoder(filepath.Join(t.TempDir(), "missing")); got != "libx264" {
		t.Errorf("missing binary should fall back to libx264, got %q", got)
	}
}

func TestStampMarksFrame(t *testing.T) {
	fresh := func() *image.RGBA {
		f := image.NewRGBA(image.Rect(0, 0, 160, 120))
		for i := range f.Pix {
			f.Pix[i] = 0xff
		}
		return f
	}

	a := fresh()
	Stamp(a, 42, 1.4)

	dark := 0
	for y := stampMargin; y < stampMargin+stampSize; y++ {
		for x := stampMargin; x < stampMargin+stampSize; x++ {
			if a.Pix[a.PixOffset(x, y)] < 128 {
				dark++
			}
		}
	}
	if dark == 0 {
		t.Error("stamp left no visible mark")
	}

	outside := a.Pix[a.PixOffset(120, 100)]
	if outside != 0xff {
		t.Errorf("stamp leaked outside its corner: %d", outside)
	}

	b := fresh()
	Stamp(b, 42, 1.4)
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("stamping the same frame index twice must be identical")
	}
}
