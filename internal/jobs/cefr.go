package jobs

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed cefr.yaml
var cefrYAML []byte

// CEFRGuidance parameterizes chapter generation for one proficiency tier.
type CEFRGuidance struct {
	Vocabulary  string `yaml:"vocabulary"`
	Grammar     string `yaml:"grammar"`
	Sentences   string `yaml:"sentences"`
	TargetWords int    `yaml:"target_words"`
}

var cefrTable map[string]CEFRGuidance

func init() {
	if err := yaml.Unmarshal(cefrYAML, &cefrTable); err != nil {
		panic(fmt.Sprintf("invalid embedded cefr table: %v", err))
	}
	if _, ok := cefrTable["B1"]; !ok {
		panic("embedded cefr table is missing the B1 fallback tier")
	}
}

// GuidanceForLevel returns the generation policy for a CEFR level code.
// Unknown levels fall back to the mid-tier B1 policy.
func GuidanceForLevel(level string) CEFRGuidance {
	if g, ok := cefrTable[strings.ToUpper(strings.TrimSpace(level))]; ok {
		return g
	}
	return cefrTable["B1"]
}
