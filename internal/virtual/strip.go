package virtual

import (
	"math/rand/v2"
	"time"

	colorful "github.com/lucasb-eyer/go-colorful"

	"zigbee-ledfx/internal/effects"
)

const (
	defaultSpeed   = 50
	minFrameDelay  = 20 * time.Millisecond
	maxFrameDelay  = 200 * time.Millisecond
	idleFrameDelay = 100 * time.Millisecond

	twinkleChance = 8 // percent per LED per frame
)

// FrameDelay returns the animation frame period for a speed value. Speed 0
// selects the firmware default.
func FrameDelay(speed uint8) time.Duration {
	s := int(speed)
	if s == 0 {
		s = defaultSpeed
	}
	d := maxFrameDelay - time.Duration(s*190/255)*time.Millisecond
	if d < minFrameDelay {
		d = minFrameDelay
	}
	return d
}

// Strip is the pixel buffer of the LED strip.
type Strip struct {
	pixels []colorful.Color
	stars  []float64
	rng    *rand.Rand
}

// NewStrip allocates a strip of n LEDs.
func NewStrip(n int, seed uint64) *Strip {
	return &Strip{
		pixels: make([]colorful.Color, n),
		stars:  make([]float64, n),
		rng:    rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)),
	}
}

// Len returns the number of LEDs.
func (s *Strip) Len() int { return len(s.pixels) }

// Hex returns the pixels as #rrggbb strings.
func (s *Strip) Hex() []string {
	out := make([]string, len(s.pixels))
	for i, c := range s.pixels {
		out[i] = c.Clamped().Hex()
	}
	return out
}

// resetStars clears the twinkle buffer, as the firmware does on effect start.
func (s *Strip) resetStars() {
	for i := range s.stars {
		s.stars[i] = 0
	}
}

// render draws one frame. level is the global brightness in [0,1].
func (s *Strip) render(kind effects.Kind, frame uint32, base colorful.Color, level float64) {
	n := len(s.pixels)
	switch kind {
	case effects.Rainbow:
		for i := range s.pixels {
			hue := float64((int(frame)*3 + i*360/n) % 360)
			s.pixels[i] = colorful.Hsv(hue, 1, level)
		}
	case effects.Strobe:
		c := colorful.Color{}
		if frame%2 == 0 {
			c = scale(base, level)
		}
		for i := range s.pixels {
			s.pixels[i] = c
		}
	case effects.Twinkle:
		for i := range s.pixels {
			if s.rng.IntN(100) < twinkleChance {
				if s.stars[i] == 0 {
					s.stars[i] = float64(180+s.rng.IntN(76)) / 255
				} else {
					s.stars[i] = 0
				}
			}
			s.pixels[i] = scale(base, level*s.stars[i])
		}
	default:
		s.fill(scale(base, level))
	}
}

func (s *Strip) fill(c colorful.Color) {
	for i := range s.pixels {
		s.pixels[i] = c
	}
}

func scale(c colorful.Color, f float64) colorful.Color {
	return colorful.Color{R: c.R * f, G: c.G * f, B: c.B * f}
}
