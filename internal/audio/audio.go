// Package audio probes narration tracks and lays them onto the composition
// timeline as an ffmpeg filter graph.
package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ivlev/slides2video/internal/fault"
)

// Prober reads media durations through ffprobe.
type Prober struct {
	path string
}

func NewProber(ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{path: ffprobePath}
}

// Duration returns the duration of the media file at path in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.path,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fault.Wrap(fault.ErrAudioProbe, "probe",
			fmt.Sprintf("%s: %s", path, strings.TrimSpace(string(out))), err)
	}

	var duration float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &duration); err != nil {
		return 0, fault.Wrap(fault.ErrAudioProbe, "probe", path, err)
	}
	if duration <= 0 {
		return 0, fault.Wrap(fault.ErrAudioProbe, "probe",
			fmt.Sprintf("%s: non-positive duration %f", path, duration), nil)
	}
	return duration, nil
}

// Track is one narration file placed on the composition timeline.
type Track struct {
	Path string
	// Offset is where the owning item starts, in seconds from the
	// composition start.
	Offset float64
	// Window is the item's rendered duration. The track is trimmed or
	// silence-padded to exactly this length before placement.
	Window float64
}

// MixSpec describes the full audio side of a composition.
type MixSpec struct {
	Tracks      []Track
	Music       string
	MusicVolume float64
	// Total is the final video duration, used for the music fade envelope.
	Total float64
}

// Empty reports whether the composition carries no audio at all.
func (m MixSpec) Empty() bool {
	return len(m.Tracks) == 0 && m.Music == ""
}

// Graph builds the ffmpeg input arguments and the filter graph for the mix.
// base is the input index the first audio file will occupy (the raw video
// stream usually sits at index 0). The returned label names the mixed output
// stream for -map; it is empty when the spec is empty.
func (m MixSpec) Graph(base int) (args []string, filter string, label string) {
	if m.Empty() {
		return nil, "", ""
	}

	var graph strings.Builder
	voices := make([]string, 0, len(m.Tracks))
	idx := base
	for i, tr := range m.Tracks {
		args = append(args, "-i", tr.Path)
		out := fmt.Sprintf("[a%d]", i)
		delay := int(tr.Offset * 1000)
		fmt.Fprintf(&graph, "[%d:a]atrim=0:%f,apad=whole_dur=%f,adelay=%d|%d%s;",
			idx, tr.Window, tr.Window, delay, delay, out)
		voices = append(voices, out)
		idx++
	}

	voiceOut := ""
	switch len(voices) {
	case 0:
	case 1:
		voiceOut = voices[0]
	default:
		fmt.Fprintf(&graph, "%samix=inputs=%d:normalize=0:duration=longest[voice];",
			strings.Join(voices, ""), len(voices))
		voiceOut = "[voice]"
	}

	if m.Music != "" {
		args = append(args, "-stream_loop", "-1", "-i", m.Music)
		fmt.Fprintf(&graph, "[%d:a]%s[bg_a];", idx, m.envelope())
		if voiceOut != "" {
			fmt.Fprintf(&graph, "%s[bg_a]amix=inputs=2:duration=first:dropout_transition=3[aout];", voiceOut)
			label = "[aout]"
		} else {
			label = "[bg_a]"
		}
	} else {
		label = voiceOut
	}

	return args, strings.TrimSuffix(graph.String(), ";"), label
}

// envelope fades the music bed in and out so it never lands or cuts at full
// volume.
func (m MixSpec) envelope() string {
	fadeIn := 5.0
	fadeOut := 5.0
	if m.Total < fadeIn+fadeOut {
		fadeIn = m.Total * 0.1
		fadeOut = m.Total * 0.1
	}
	return fmt.Sprintf("volume='%f*(if(lte(t,%f), 0.1 + 0.9*(t/%f), if(gte(t, %f), (%f-t)/%f, 1.0)))':eval=frame",
		m.MusicVolume, fadeIn, fadeIn, m.Total-fadeOut, m.Total, fadeOut)
}
