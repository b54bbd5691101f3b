package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ivlev/slides2video/internal/motion"
)

// Key derives the content address for one renderable configuration. Identical
// keys promise byte-identical segments, so everything that shapes the output
// pixels goes in: source content, the full motion settings, resolution and
// frame rate. Settings changes invalidate structurally by changing the key.
func Key(imageDigest string, settings motion.Settings, width, height, fps int) string {
	h := sha256.New()
	fmt.Fprintf(h, "v1|%s|%s|%dx%d|%d", imageDigest, settings.Canonical(), width, height, fps)
	return hex.EncodeToString(h.Sum(nil))
}
