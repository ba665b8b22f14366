package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// personaFile is the YAML shape of an optional persona override file.
// Only non-zero fields replace the built-in default.
type personaFile struct {
	Name              string   `yaml:"name"`
	Persona           string   `yaml:"persona"`
	Backstory         string   `yaml:"backstory"`
	PersonalityTraits []string `yaml:"personality_traits"`
	RelationshipType  string   `yaml:"relationship_type"`
	ResponseStyle     string   `yaml:"response_style"`
	ResponseLength    string   `yaml:"response_length"`
	VoiceGender       string   `yaml:"voice_gender"`
	Appearance        string   `yaml:"appearance"`
}

// LoadPersona reads a persona.yaml file and overlays it on the default
// companion profile. A missing file is not an error: the default
// profile is returned unchanged.
func LoadPersona(path string) (AIProfile, error) {
	profile := DefaultAIProfile()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return profile, nil
		}

		return profile, fmt.Errorf("reading persona file: %w", err)
	}

	var pf personaFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return profile, fmt.Errorf("parsing persona file: %w", err)
	}

	if pf.Name != "" {
		profile.Name = pf.Name
	}

	if pf.Persona != "" {
		profile.Persona = pf.Persona
	}

	if pf.Backstory != "" {
		profile.Backstory = pf.Backstory
	}

	if len(pf.PersonalityTraits) > 0 {
		profile.PersonalityTraits = pf.PersonalityTraits
	}

	if pf.RelationshipType != "" {
		profile.RelationshipType = pf.RelationshipType
	}

	if pf.ResponseStyle != "" {
		profile.ResponseStyle = pf.ResponseStyle
	}

	if pf.ResponseLength != "" {
		profile.ResponseLength = pf.ResponseLength
	}

	if pf.VoiceGender != "" {
		profile.VoiceGender = pf.VoiceGender
	}

	if pf.Appearance != "" {
		profile.Appearance = pf.Appearance
	}

	return profile, nil
}
