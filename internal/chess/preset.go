package chess

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ModelTier selects the class of model a provider should use.
type ModelTier string

const (
	TierBasic    ModelTier = "basic"
	TierStandard ModelTier = "standard"
	TierAdvanced ModelTier = "advanced"
	TierExpert   ModelTier = "expert"
)

func (t ModelTier) Valid() bool {
	switch t {
	case TierBasic, TierStandard, TierAdvanced, TierExpert:
		return true
	}
	return false
}

// DifficultyProfile drives the sampling temperature and the strategic
// guidance written into the prompt. It never changes what is legal.
type DifficultyProfile struct {
	Name        string    `json:"name"`
	Label       string    `json:"label"`
	Temperature float64   `json:"temperature"`
	Tier        ModelTier `json:"tier"`
}

const DefaultProfileName = "intermediate"

var profileMu sync.RWMutex

var DefaultProfiles = map[string]DifficultyProfile{
	"beginner": {
		Name:        "beginner",
		Label:       "입문",
		Temperature: 1.0,
		Tier:        TierBasic,
	},
	"intermediate": {
		Name:        "intermediate",
		Label:       "중급",
		Temperature: 0.7,
		Tier:        TierStandard,
	},
	"advanced": {
		Name:        "advanced",
		Label:       "고급",
		Temperature: 0.3,
		Tier:        TierAdvanced,
	},
	"expert": {
		Name:        "expert",
		Label:       "전문가",
		Temperature: 0.1,
		Tier:        TierExpert,
	},
}

var profileAliases = map[string]string{
	"level1": "beginner",
	"easy":   "beginner",
	"입문":     "beginner",
	"level2": "intermediate",
	"normal": "intermediate",
	"중급":     "intermediate",
	"level3": "advanced",
	"hard":   "advanced",
	"고급":     "advanced",
	"level4": "expert",
	"master": "expert",
	"전문가":    "expert",
}

// GetProfile resolves a profile by name or alias. An empty name yields the
// default profile.
func GetProfile(name string) (DifficultyProfile, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultProfileName
	}
	if alias, ok := profileAliases[key]; ok {
		key = alias
	}
	profileMu.RLock()
	p, ok := DefaultProfiles[key]
	profileMu.RUnlock()
	if ok {
		return p, nil
	}
	return DifficultyProfile{}, fmt.Errorf("unknown difficulty: %s", name)
}

// SetProfileTemperature overrides the temperature of a registered profile.
func SetProfileTemperature(name string, temperature float64) error {
	p, err := GetProfile(name)
	if err != nil {
		return err
	}
	p.Temperature = temperature
	if err := ValidateProfile(p); err != nil {
		return err
	}
	profileMu.Lock()
	DefaultProfiles[p.Name] = p
	profileMu.Unlock()
	return nil
}

// ProfileNames returns registered profile names ordered from weakest to strongest.
func ProfileNames() []string {
	profileMu.RLock()
	defer profileMu.RUnlock()
	names := make([]string, 0, len(DefaultProfiles))
	for name := range DefaultProfiles {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return DefaultProfiles[names[i]].Temperature > DefaultProfiles[names[j]].Temperature
	})
	return names
}

func ValidateProfile(p DifficultyProfile) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("profile name must not be empty")
	case p.Temperature < 0 || p.Temperature > 1:
		return fmt.Errorf("temperature %.2f out of range 0-1", p.Temperature)
	case !p.Tier.Valid():
		return fmt.Errorf("unknown model tier: %q", p.Tier)
	}
	return nil
}
