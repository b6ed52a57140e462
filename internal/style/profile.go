package style

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// CategoryPreference is one clothing category in a user's style profile
// with the model's confidence that it flatters the user.
type CategoryPreference struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Color is a flattering color by name and hex value.
type Color struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

// Profile is the structured summary of a user's style, loaded from the
// profile store. It is immutable during a detection session; the analysis
// cache is invalidated whenever the profile is replaced.
type Profile struct {
	Categories []CategoryPreference `json:"categories"`
	Colors     []Color              `json:"colors"`
	Reasoning  string               `json:"reasoning"`
}

// Hash returns a stable digest of the profile, used in analysis cache
// keys. Fields are length-prefixed to prevent boundary collisions.
func (p *Profile) Hash() string {
	if p == nil {
		return "none"
	}
	h := sha256.New()
	write := func(s string) {
		binary.Write(h, binary.LittleEndian, int64(len(s)))
		h.Write([]byte(s))
	}
	for _, c := range p.Categories {
		write(c.Category)
		binary.Write(h, binary.LittleEndian, math.Float64bits(c.Confidence))
	}
	for _, c := range p.Colors {
		write(c.Name)
		write(c.Hex)
	}
	write(p.Reasoning)
	return hex.EncodeToString(h.Sum(nil))
}
