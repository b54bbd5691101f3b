package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ivlev/slides2video/internal/cache"
	"github.com/ivlev/slides2video/internal/config"
	"github.com/ivlev/slides2video/internal/engine"
	"github.com/ivlev/slides2video/internal/logging"
	"github.com/ivlev/slides2video/internal/metrics"
	"github.com/ivlev/slides2video/internal/storyboard"
	"github.com/ivlev/slides2video/internal/system"
	"github.com/ivlev/slides2video/internal/video"
)

// version is stamped by the build.
var version = "dev"

func main() {
	// Missing .env is fine, the system environment still applies.
	_ = config.LoadEnv()

	cfg := config.Default()
	cfg.LogLevel = config.GetEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = config.GetEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.CacheDir = config.GetEnv("CACHE_DIR", cfg.CacheDir)
	cfg.FFmpegPath = config.GetEnv("FFMPEG_PATH", cfg.FFmpegPath)
	cfg.FFprobePath = config.GetEnv("FFPROBE_PATH", cfg.FFprobePath)

	dirPtr := flag.String("dir", "input", "Assets directory: images, PDFs, narration")
	boardPtr := flag.String("storyboard", "", "Storyboard path (default: newest .yaml in -dir)")
	initPtr := flag.Bool("init", false, "Scaffold a storyboard from -dir and exit")
	outputPtr := flag.String("output", "", "Output video path (default: timestamped file in output/)")
	qualityPtr := flag.String("quality", "", "Quality profile: low, medium, high (overrides the storyboard)")
	fpsPtr := flag.Int("fps", 0, "Frames per second (default 30)")
	workersPtr := flag.Int("workers", 0, "Render workers (0 = size to this machine)")
	musicPtr := flag.String("music", "", "Music bed: file or directory (newest audio wins)")
	musicVolPtr := flag.Float64("music-volume", 0, "Music level under narration, 0..1")
	cachePtr := flag.String("cache", "", "Segment cache directory")
	clearPtr := flag.Bool("clear-cache", false, "Drop cached segments before composing")
	previewPtr := flag.Int("preview", 0, "Render only this item (1-based) for a quick check")
	statsPtr := flag.Bool("stats", false, "Print a performance report and append benchmark.log")
	debugPtr := flag.Bool("debug", false, "Burn a QR timecode stamp into every frame")
	metricsPtr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (off when empty)")
	logLevelPtr := flag.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	logFormatPtr := flag.String("log-format", cfg.LogFormat, "Log format: text, json")
	versionPtr := flag.Bool("version", false, "Print the version and exit")

	flag.Parse()

	if *versionPtr {
		fmt.Println("slides2video", version)
		return
	}

	cfg.LogLevel = *logLevelPtr
	cfg.LogFormat = *logFormatPtr
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	system.InitResourceLimits(logger)

	for _, d := range []string{*dirPtr, "output"} {
		if err := os.MkdirAll(d, 0755); err != nil {
			log.Fatalf("[-] Cannot create %s: %v", d, err)
		}
	}

	if *initPtr {
		sb, err := storyboard.Generate(*dirPtr, logger)
		if err != nil {
			log.Fatalf("[-] Scaffold failed: %v", err)
		}
		path := *boardPtr
		if path == "" {
			path = storyboard.DefaultPath(*dirPtr)
		}
		if err := storyboard.Write(sb, path); err != nil {
			log.Fatalf("[-] Cannot write storyboard: %v", err)
		}
		fmt.Printf("[+++] Storyboard written: %s (%d items)\n", path, len(sb.Items))
		fmt.Println("[*] Review it, then run again without -init to compose")
		return
	}

	boardPath := *boardPtr
	if boardPath == "" {
		latest, err := storyboard.FindLatest(*dirPtr)
		if err != nil {
			log.Fatalf("[-] %v. Run with -init to scaffold one", err)
		}
		boardPath = latest
		fmt.Printf("[*] Storyboard: %s\n", boardPath)
	}

	sb, err := storyboard.Read(boardPath)
	if err != nil {
		log.Fatalf("[-] %v", err)
	}

	job, err := sb.ToJob(filepath.Dir(boardPath))
	if err != nil {
		log.Fatalf("[-] %v", err)
	}

	// CLI overrides beat storyboard values, which beat config defaults.
	if *qualityPtr != "" {
		cfg.Quality = *qualityPtr
	} else if job.Quality != "" {
		cfg.Quality = job.Quality
	}
	job.Quality = ""
	cfg.ApplyProfile()

	if *fpsPtr > 0 {
		cfg.FPS = *fpsPtr
	}
	if *musicPtr != "" {
		music, err := system.FindLatestAudio(*musicPtr)
		if err != nil {
			log.Fatalf("[-] %v", err)
		}
		job.MusicPath = music
		fmt.Printf("[*] Music bed: %s\n", music)
	}
	if *musicVolPtr > 0 {
		job.MusicVolume = *musicVolPtr
	}
	if *outputPtr != "" {
		job.OutPath = *outputPtr
	}
	if job.OutPath == "" {
		job.OutPath = defaultOutput(boardPath)
	}

	cfg.Workers = system.Workers(*workersPtr, cfg.Width, cfg.Height, logger)
	cfg.Debug = *debugPtr
	cfg.ShowStats = *statsPtr
	cfg.MetricsAddr = *metricsPtr

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[-] %v", err)
	}

	cacheDir := *cachePtr
	if cacheDir == "" {
		cacheDir = cfg.CacheDir
	}
	if cacheDir == "" {
		cacheDir = filepath.Join(".cache", "slides2video")
	}
	if *clearPtr {
		if err := os.RemoveAll(cacheDir); err != nil {
			log.Fatalf("[-] Cannot clear cache: %v", err)
		}
		fmt.Printf("[*] Cache cleared: %s\n", cacheDir)
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		log.Fatalf("[-] Cannot create cache dir: %v", err)
	}
	if free, err := system.DiskFree(cacheDir); err == nil && free < 1<<30 {
		fmt.Printf("[!] Low disk space for cache: %d MB free\n", free>>20)
	}

	if cfg.VideoEncoder == "" {
		cfg.VideoEncoder = video.BestH264Encoder(cfg.FFmpegPath)
		fmt.Printf("[*] Encoder: %s\n", cfg.VideoEncoder)
	}

	met := metrics.New()
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", met.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics endpoint", "error", err)
			}
		}()
		fmt.Printf("[*] Metrics on http://%s/metrics\n", cfg.MetricsAddr)
	}

	store, err := cache.NewDiskStore(cacheDir)
	if err != nil {
		log.Fatalf("[-] Cache store: %v", err)
	}
	pipe := engine.New(cfg, cache.New(store, logger, met), nil, nil, logger, met)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var res engine.Result
	if *previewPtr > 0 {
		idx := *previewPtr - 1
		if idx >= len(job.Items) {
			log.Fatalf("[-] Preview item %d of %d", *previewPtr, len(job.Items))
		}
		out := previewPath(job.OutPath, *previewPtr)
		fmt.Printf("[>] Previewing item %d -> %s\n", *previewPtr, out)
		res, err = pipe.Preview(ctx, job.Items[idx], out)
	} else {
		fmt.Printf("[>] Composing %d items -> %s\n", len(job.Items), job.OutPath)
		res, err = pipe.Compose(ctx, job)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Fatal("[-] Interrupted")
		}
		log.Fatalf("[-] %v", err)
	}

	fmt.Printf("[+++] Done: %s (%.2fs, %d frames)\n", res.Path, res.Duration, res.Frames)
	if cfg.ShowStats {
		fmt.Print(res.Report())
		if err := res.AppendBenchmark("benchmark.log"); err != nil {
			logger.Warn("benchmark append failed", "error", err)
		}
	}
}

// defaultOutput names the video after the storyboard, timestamped, under
// output/.
func defaultOutput(boardPath string) string {
	base := filepath.Base(boardPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.ReplaceAll(name, " ", "_")
	stamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join("output", fmt.Sprintf("%s_%s.mp4", name, stamp))
}

// previewPath derives the preview clip name from the final output path.
func previewPath(outPath string, item int) string {
	ext := filepath.Ext(outPath)
	return fmt.Sprintf("%s_preview%02d%s", strings.TrimSuffix(outPath, ext), item, ext)
}
