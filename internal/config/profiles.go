package config

// Profile bundles the output parameters a quality name stands for. CRF drives
// libx264 and nvenc; BitrateK drives encoders that only take a bitrate, like
// VideoToolbox.
type Profile struct {
	Name     string
	Width    int
	Height   int
	CRF      int
	BitrateK int
}

var profiles = map[string]Profile{
	"low":    {Name: "low", Width: 854, Height: 480, CRF: 30, BitrateK: 1000},
	"medium": {Name: "medium", Width: 1280, Height: 720, CRF: 23, BitrateK: 2500},
	"high":   {Name: "high", Width: 1920, Height: 1080, CRF: 18, BitrateK: 5000},
}

// ProfileFor resolves a quality name. The second return is false for unknown
// names.
func ProfileFor(name string) (Profile, bool) {
	p, ok := profiles[name]
	return p, ok
}

// ProfileNames lists the known quality names for flag help text.
func ProfileNames() []string {
	return []string{"low", "medium", "high"}
}
