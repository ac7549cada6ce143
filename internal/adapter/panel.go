package adapter

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Panel is an ordered list of model ids to scan with. Panels are passed
// into the orchestrator per invocation; there is no global enabled-models
// state, so different brands can run different panels and tests are
// deterministic.
type Panel []string

// Panels holds the configured panels: the daily scan panel and the
// (typically broader) verification panel.
type Panels struct {
	Scan         Panel `yaml:"scan"`
	Verification Panel `yaml:"verification"`
}

// DefaultPanels returns the built-in panels used when no panels file is
// configured.
func DefaultPanels() *Panels {
	return &Panels{
		Scan: Panel{
			"openai/gpt-4o",
			"anthropic/claude-3-5-sonnet",
			"perplexity/sonar",
		},
		Verification: Panel{
			"openai/gpt-4o",
			"openai/gpt-4o-mini",
			"anthropic/claude-3-5-sonnet",
			"perplexity/sonar",
			"perplexity/sonar-pro",
			"google/gemini-2.0-flash",
		},
	}
}

// LoadPanels reads panels from a YAML file.
func LoadPanels(path string) (*Panels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "adapter: read panels file %s", path)
	}
	var p Panels
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrapf(err, "adapter: parse panels file %s", path)
	}
	if len(p.Scan) == 0 {
		return nil, eris.Errorf("adapter: panels file %s: empty scan panel", path)
	}
	if len(p.Verification) == 0 {
		p.Verification = p.Scan
	}
	return &p, nil
}
