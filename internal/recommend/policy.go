package recommend

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy holds every tunable the engine reads. It is plain configuration
// passed in at construction so tests can inject alternate splits.
type Policy struct {
	// Share of the requested question count per bucket. Normalized at load
	// when they do not sum to 1.
	WeaknessPercent  float64 `yaml:"weakness_percent"`
	ReviewPercent    float64 `yaml:"review_percent"`
	ChallengePercent float64 `yaml:"challenge_percent"`

	// RecentWindow is how many completed submissions feed recent accuracy.
	RecentWindow int `yaml:"recent_window"`
	// MinAttempts below which the engine reports cold start.
	MinAttempts int `yaml:"min_attempts"`
	// TopWeaknessCount caps how many weakness topics share the weakness bucket.
	TopWeaknessCount int `yaml:"top_weakness_count"`

	MinDifficulty int `yaml:"min_difficulty"`
	MaxDifficulty int `yaml:"max_difficulty"`
}

func DefaultPolicy() Policy {
	return Policy{
		WeaknessPercent:  0.5,
		ReviewPercent:    0.3,
		ChallengePercent: 0.2,
		RecentWindow:     10,
		MinAttempts:      3,
		TopWeaknessCount: 5,
		MinDifficulty:    1,
		MaxDifficulty:    5,
	}
}

// LoadPolicy reads a YAML policy file, filling gaps from the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("parse policy file: %w", err)
	}
	return p.normalized(), nil
}

func (p Policy) normalized() Policy {
	out := p
	def := DefaultPolicy()
	if out.RecentWindow <= 0 {
		out.RecentWindow = def.RecentWindow
	}
	if out.MinAttempts <= 0 {
		out.MinAttempts = def.MinAttempts
	}
	if out.TopWeaknessCount <= 0 {
		out.TopWeaknessCount = def.TopWeaknessCount
	}
	if out.MinDifficulty <= 0 {
		out.MinDifficulty = def.MinDifficulty
	}
	if out.MaxDifficulty < out.MinDifficulty {
		out.MaxDifficulty = def.MaxDifficulty
	}
	total := out.WeaknessPercent + out.ReviewPercent + out.ChallengePercent
	if total <= 0 {
		out.WeaknessPercent = def.WeaknessPercent
		out.ReviewPercent = def.ReviewPercent
		out.ChallengePercent = def.ChallengePercent
		return out
	}
	out.WeaknessPercent /= total
	out.ReviewPercent /= total
	out.ChallengePercent /= total
	return out
}
