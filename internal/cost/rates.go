package cost

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadRates reads a pricing table from a YAML file. A missing default rate
// falls back to the built-in one so unknown models are never free.
func LoadRates(path string) (Rates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rates{}, eris.Wrapf(err, "cost: read rates file %s", path)
	}

	var r Rates
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rates{}, eris.Wrapf(err, "cost: parse rates file %s", path)
	}

	if r.Default == (ModelRate{}) {
		r.Default = DefaultRates().Default
	}
	return r, nil
}
