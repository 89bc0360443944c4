package fetch

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/docpipe/internal/model"
)

// TargetDef describes one configured fetch target.
type TargetDef struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"` // "http" or "static"

	// http targets
	URL        string            `yaml:"url,omitempty"`
	RatePerSec float64           `yaml:"rate_per_sec,omitempty"`
	Burst      int               `yaml:"burst,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`

	// static targets
	Payload map[string]any `yaml:"payload,omitempty"`
}

// TargetsFile is the on-disk target configuration, plus optional per-field
// reconciliation weights.
type TargetsFile struct {
	Targets []TargetDef        `yaml:"targets"`
	Weights map[string]float64 `yaml:"weights,omitempty"`
}

// LoadTargets reads a targets file.
func LoadTargets(path string) (*TargetsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: read targets %s", path)
	}
	var tf TargetsFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, eris.Wrapf(err, "fetch: parse targets %s", path)
	}
	for i, t := range tf.Targets {
		if t.Name == "" {
			return nil, eris.Errorf("fetch: target %d has no name", i)
		}
		switch t.Type {
		case "http":
			if t.URL == "" {
				return nil, eris.Errorf("fetch: http target %q has no url", t.Name)
			}
		case "static":
		default:
			return nil, eris.Errorf("fetch: target %q has unknown type %q", t.Name, t.Type)
		}
	}
	return &tf, nil
}

// BuildRegistry constructs connectors for every target definition.
func BuildRegistry(tf *TargetsFile) (*Registry, error) {
	reg := NewRegistry()
	for _, def := range tf.Targets {
		switch def.Type {
		case "http":
			reg.Register(NewHTTPConnector(def))
		case "static":
			payload := make(map[string]model.Value, len(def.Payload))
			for name, raw := range def.Payload {
				v, err := model.FromAny(raw)
				if err != nil {
					return nil, eris.Wrapf(err, "fetch: target %q field %q", def.Name, name)
				}
				payload[name] = v
			}
			reg.Register(NewStaticConnector(def.Name, payload))
		}
	}
	return reg, nil
}
