package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/ivlev/slides2video/internal/fault"
)

type Config struct {
	Width        int
	Height       int
	FPS          int
	Workers      int
	CacheDir     string
	Quality      string
	VideoEncoder string
	FFmpegPath   string
	FFprobePath  string
	MusicVolume  float64
	Debug        bool
	ShowStats    bool
	LogLevel     string
	LogFormat    string
	MetricsAddr  string
}

const (
	MinFPS = 1
	MaxFPS = 120
)

func Default() *Config {
	return &Config{
		Width:        1280,
		Height:       720,
		FPS:          30,
		Workers:      runtime.NumCPU(),
		Quality:      "medium",
		VideoEncoder: "",
		FFmpegPath:   "ffmpeg",
		FFprobePath:  "ffprobe",
		MusicVolume:  0.2,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Validate checks the pipeline-wide settings. Quality names resolve through
// the profile table; an empty encoder means autodetect later.
func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fault.Wrap(fault.ErrInvalidConfig, "config", fmt.Sprintf("resolution %dx%d", c.Width, c.Height), nil)
	}
	if c.Width%2 != 0 || c.Height%2 != 0 {
		// yuv420p needs even dimensions
		return fault.Wrap(fault.ErrInvalidConfig, "config", fmt.Sprintf("resolution %dx%d must be even", c.Width, c.Height), nil)
	}
	if c.FPS < MinFPS || c.FPS > MaxFPS {
		return fault.Wrap(fault.ErrInvalidConfig, "config", fmt.Sprintf("fps %d outside [%d, %d]", c.FPS, MinFPS, MaxFPS), nil)
	}
	if c.Workers < 1 {
		return fault.Wrap(fault.ErrInvalidConfig, "config", fmt.Sprintf("workers %d", c.Workers), nil)
	}
	if _, ok := ProfileFor(c.Quality); !ok {
		return fault.Wrap(fault.ErrInvalidConfig, "config", fmt.Sprintf("unknown quality %q", c.Quality), nil)
	}
	if c.MusicVolume < 0 || c.MusicVolume > 1 {
		return fault.Wrap(fault.ErrInvalidConfig, "config", fmt.Sprintf("music volume %.2f outside [0, 1]", c.MusicVolume), nil)
	}
	return nil
}

// ApplyProfile overwrites the resolution with the quality profile's unless the
// caller already set a custom one.
func (c *Config) ApplyProfile() {
	p, ok := ProfileFor(c.Quality)
	if !ok {
		return
	}
	d := Default()
	if c.Width == d.Width && c.Height == d.Height {
		c.Width = p.Width
		c.Height = p.Height
	}
}

// LoadEnv reads .env from the working directory and sets environment
// variables. Missing files are fine; callers fall back to system env.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or
// fallback if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by
// key, or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}
