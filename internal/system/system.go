// Package system sizes the pipeline to the machine it runs on.
package system

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ivlev/slides2video/internal/logging"
)

// nofileTarget covers one descriptor per open segment on long timelines.
const nofileTarget = 2048

// InitResourceLimits raises the open file limit when the soft limit sits
// below the target. Failures only log; the pipeline still runs.
func InitResourceLimits(log *slog.Logger) {
	log = logging.Or(log)

	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		log.Warn("read file limit", "error", err)
		return
	}
	if limit.Cur >= nofileTarget {
		return
	}

	limit.Cur = nofileTarget
	if limit.Cur > limit.Max {
		limit.Cur = limit.Max
	}
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		log.Warn("raise file limit", "error", err)
		return
	}
	log.Info("open file limit raised", "limit", limit.Cur)
}

// Workers picks the render worker count. A positive request wins;
// otherwise one worker per logical CPU, trimmed so the working sets fit
// in half the available memory.
func Workers(requested, width, height int, log *slog.Logger) int {
	log = logging.Or(log)
	if requested > 0 {
		return requested
	}

	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		n = runtime.NumCPU()
	}
	if n < 1 {
		n = 1
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Warn("memory stats unavailable", "error", err)
		return n
	}

	per := workerBytes(width, height)
	fit := int(vm.Available / 2 / per)
	if fit < 1 {
		fit = 1
	}
	if fit < n {
		log.Info("workers trimmed to fit memory",
			"cpus", n, "workers", fit, "available_mb", vm.Available>>20)
		n = fit
	}
	return n
}

// workerBytes estimates one worker's peak working set. The supersampled
// intermediate frame dominates: 3x per axis plus a few output-size frames.
func workerBytes(width, height int) uint64 {
	out := uint64(width) * uint64(height) * 4
	return out * 13
}

// DiskFree reports the free bytes on the filesystem holding path.
func DiskFree(path string) (uint64, error) {
	u, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return u.Free, nil
}

var (
	audioExts = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".flac"}
	imageExts = []string{".jpg", ".jpeg", ".png"}
)

// FindLatestAudio resolves path to an audio file. A directory resolves to
// its most recently modified audio file, so flags accept either form.
func FindLatestAudio(path string) (string, error) {
	return latestByExt(path, audioExts, "audio")
}

// FindLatestImage resolves path to an image file, directories resolving
// like FindLatestAudio.
func FindLatestImage(path string) (string, error) {
	return latestByExt(path, imageExts, "image")
}

func latestByExt(path string, exts []string, kind string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !fi.IsDir() {
		return path, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", err
	}

	var latest string
	var latestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || !hasExt(entry.Name(), exts) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestMod) {
			latestMod = info.ModTime()
			latest = filepath.Join(path, entry.Name())
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no %s files in %s", kind, path)
	}
	return latest, nil
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
