package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/ecoaudit/internal/audit"
	"github.com/dgnsrekt/ecoaudit/internal/scoring"
)

// ErrWeights is returned when category weights do not sum to 1.
var ErrWeights = errors.New("category weights must sum to 1")

const weightTolerance = 1e-6

var validate = validator.New()

// CategorySettings is the weight and blurb of one audit category.
type CategorySettings struct {
	Weight      float64 `yaml:"weight" json:"weight" validate:"gte=0,lte=1"`
	Description string  `yaml:"description" json:"description"`
}

// Profile is the scoring calibration applied to a run.
type Profile struct {
	Name            string                              `yaml:"name" json:"name"`
	Categories      map[audit.Category]CategorySettings `yaml:"categories" json:"categories" validate:"required,min=1,dive"`
	References      map[string]scoring.Reference        `yaml:"references" json:"references" validate:"dive"`
	Thresholds      audit.Thresholds                    `yaml:"thresholds" json:"thresholds"`
	Carbon          audit.CarbonModel                   `yaml:"carbon" json:"carbon"`
	PixelPowerLimit float64                             `yaml:"pixel_power_limit" json:"pixel_power_limit" validate:"gt=0"`
	Disabled        []string                            `yaml:"disabled" json:"disabled,omitempty"`
	AuditWeights    map[string]float64                  `yaml:"audit_weights" json:"audit_weights,omitempty" validate:"dive,gte=0"`
}

// DefaultProfile returns the built-in calibration.
func DefaultProfile() *Profile {
	env := audit.DefaultEnv()
	return &Profile{
		Name: "default",
		Categories: map[audit.Category]CategorySettings{
			audit.CategoryServer: {
				Weight:      0.5,
				Description: "Server aspects which are essential for online sustainability: green hosting, carbon footprint, data transfer.",
			},
			audit.CategoryDesign: {
				Weight:      0.5,
				Description: "Hands-on the website assets that convert code to user-friendly content: images, css stylesheets, scripts, fonts.",
			},
		},
		References:      env.References,
		Thresholds:      env.Thresholds,
		Carbon:          env.Carbon,
		PixelPowerLimit: env.PixelPowerLimit,
	}
}

// LoadProfile reads a YAML profile. Sections missing from the file keep
// their defaults. An empty path returns the default profile.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates YAML profile data.
func ParseProfile(data []byte) (*Profile, error) {
	p := DefaultProfile()
	// Maps decoded from YAML merge into the defaults, so start categories
	// fresh when the document names its own.
	var probe struct {
		Categories map[string]any `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if len(probe.Categories) > 0 {
		p.Categories = nil
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks struct constraints, reference shapes and the weight sum.
func (p *Profile) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fe.Error())
			}
			return fmt.Errorf("invalid profile: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid profile: %w", err)
	}
	for name, ref := range p.References {
		if err := ref.Validate(); err != nil {
			return fmt.Errorf("invalid profile: reference %s: %w", name, err)
		}
	}
	var sum float64
	for _, c := range p.Categories {
		sum += c.Weight
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w (got %.6f)", ErrWeights, sum)
	}
	return nil
}

// Env converts the profile into the read-only audit environment.
func (p *Profile) Env() audit.Env {
	refs := make(map[string]scoring.Reference, len(p.References))
	for k, v := range p.References {
		refs[k] = v
	}
	return audit.Env{
		References:      refs,
		Thresholds:      p.Thresholds,
		Carbon:          p.Carbon,
		PixelPowerLimit: p.PixelPowerLimit,
	}
}

// CategoryWeights returns the weight of each category.
func (p *Profile) CategoryWeights() map[audit.Category]float64 {
	out := make(map[audit.Category]float64, len(p.Categories))
	for k, v := range p.Categories {
		out[k] = v.Weight
	}
	return out
}

// AuditWeight returns the in-category weight of an audit, defaulting to 1.
func (p *Profile) AuditWeight(id string) float64 {
	if w, ok := p.AuditWeights[id]; ok {
		return w
	}
	return 1
}

// Registry returns the builtin audits minus the disabled ones.
func (p *Profile) Registry() *audit.Registry {
	return audit.Builtin().Without(p.Disabled...)
}

// CategoryNames lists configured categories, sorted.
func (p *Profile) CategoryNames() []audit.Category {
	out := make([]audit.Category, 0, len(p.Categories))
	for k := range p.Categories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
