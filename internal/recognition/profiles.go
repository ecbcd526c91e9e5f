package recognition

import (
	_ "embed"

	"gopkg.in/yaml.v3"
)

// Profile is a named bundle of detection/recognition thresholds. A closed
// Go type loaded from YAML, replacing the duck-typed config dictionaries
// the design notes call out, the way the teacher embeds prices.yaml via
// internal/config/config.go's //go:embed + yaml.Unmarshal idiom.
type Profile struct {
	Name                string  `yaml:"name"`
	ConfidenceThreshold float64 `yaml:"confidenceThreshold"`
}

//go:embed profiles.yaml
var profilesYAML []byte

// ProfileName is a closed enum of the spec's four preset names.
type ProfileName string

const (
	HighSecurity ProfileName = "high_security"
	Balanced     ProfileName = "balanced"
	Fast         ProfileName = "fast"
	Permissive   ProfileName = "permissive"
)

// LoadProfiles parses the embedded profile table.
func LoadProfiles() (map[ProfileName]Profile, error) {
	var raw map[string]Profile
	if err := yaml.Unmarshal(profilesYAML, &raw); err != nil {
		return nil, err
	}
	out := make(map[ProfileName]Profile, len(raw))
	for k, v := range raw {
		out[ProfileName(k)] = v
	}
	return out, nil
}
