package curve

import (
	"fmt"
	"hash/fnv"

	"github.com/tanema/gween/ease"

	"github.com/ivlev/slides2video/internal/fault"
)

// Curve selects an easing function mapping normalized time to normalized
// progress. The zero value is Linear.
type Curve uint8

const (
	Linear Curve = iota
	EaseIn
	EaseOut
	EaseInOut
	StrongEaseIn
	StrongEaseOut
	SmoothElasticIn
	SmoothElasticOut
	// Random resolves to one of the concrete curves above, seeded by the
	// item id. Resolve before rendering or key computation.
	Random
)

var names = map[Curve]string{
	Linear:           "linear",
	EaseIn:           "ease-in",
	EaseOut:          "ease-out",
	EaseInOut:        "ease-in-out",
	StrongEaseIn:     "strong-ease-in",
	StrongEaseOut:    "strong-ease-out",
	SmoothElasticIn:  "smooth-elastic-in",
	SmoothElasticOut: "smooth-elastic-out",
	Random:           "random",
}

func (c Curve) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("curve(%d)", uint8(c))
}

// Parse maps a catalog name to its Curve. Unknown names fail with
// ErrInvalidConfig.
func Parse(name string) (Curve, error) {
	for c, s := range names {
		if s == name {
			return c, nil
		}
	}
	return Linear, fault.Wrap(fault.ErrInvalidConfig, "curve", fmt.Sprintf("unknown curve %q", name), nil)
}

// Progress applies the easing function at normalized time t. Input outside
// [0,1] is clamped; the elastic curves overshoot [0,1] slightly near their
// endpoints. Random must be resolved first and evaluates as Linear here.
func (c Curve) Progress(t float64) float64 {
	if t <= 0 {
		t = 0
	} else if t >= 1 {
		t = 1
	}

	var fn ease.TweenFunc
	switch c {
	case Linear, Random:
		fn = ease.Linear
	case EaseIn:
		fn = ease.InCubic
	case EaseOut:
		fn = ease.OutCubic
	case EaseInOut:
		fn = ease.InOutSine
	case StrongEaseIn:
		fn = ease.InQuart
	case StrongEaseOut:
		fn = ease.OutQuart
	case SmoothElasticIn:
		fn = ease.InBack
	case SmoothElasticOut:
		fn = ease.OutBack
	default:
		fn = ease.Linear
	}

	return float64(fn(float32(t), 0, 1, 1))
}

// concrete lists every curve Random may resolve to.
var concrete = []Curve{
	Linear, EaseIn, EaseOut, EaseInOut,
	StrongEaseIn, StrongEaseOut, SmoothElasticIn, SmoothElasticOut,
}

// Resolve replaces Random with a concrete curve chosen deterministically from
// seed (usually the item id), so repeated renders of the same item pick the
// same curve. Concrete curves pass through unchanged.
func (c Curve) Resolve(seed string) Curve {
	if c != Random {
		return c
	}
	h := fnv.New64a()
	h.Write([]byte(seed))
	return concrete[h.Sum64()%uint64(len(concrete))]
}
