// Package catalog holds the static device catalog: which manual documents a
// given manufacturer/model pair. It is a flat lookup table loaded from YAML,
// with a built-in default covering the supported device fleet.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/MedManualAI/medmanual-mvp/engine/domain"
)

//go:embed devices.yaml
var defaultDevices []byte

type manualEntry struct {
	Remote string `yaml:"remote"`
	Local  string `yaml:"local"`
}

type catalogFile struct {
	Manufacturers map[string]struct {
		Models map[string]manualEntry `yaml:"models"`
	} `yaml:"manufacturers"`
}

// Catalog maps manufacturer → model → manual reference.
type Catalog struct {
	manufacturers map[string]map[string]manualEntry
}

// Load reads a catalog from a YAML file. An empty path loads the embedded
// default device set.
func Load(path string) (*Catalog, error) {
	data := defaultDevices
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", path, err)
		}
		data = b
	}
	return Parse(data)
}

// Parse decodes catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	c := &Catalog{manufacturers: make(map[string]map[string]manualEntry, len(f.Manufacturers))}
	for mfr, m := range f.Manufacturers {
		c.manufacturers[mfr] = m.Models
	}
	return c, nil
}

// Resolve looks up the manual reference for a device. It tries the given
// manufacturer first; with an empty or unknown manufacturer it falls back to
// searching every manufacturer for the model alone.
func (c *Catalog) Resolve(manufacturer, model string) (domain.ManualReference, bool) {
	if models, ok := c.manufacturers[manufacturer]; ok {
		if e, ok := models[model]; ok {
			return reference(manufacturer, model, e), true
		}
	}
	for mfr, models := range c.manufacturers {
		if e, ok := models[model]; ok {
			return reference(mfr, model, e), true
		}
	}
	return domain.ManualReference{}, false
}

// Manufacturers returns all manufacturer names, sorted.
func (c *Catalog) Manufacturers() []string {
	out := make([]string, 0, len(c.manufacturers))
	for mfr := range c.manufacturers {
		out = append(out, mfr)
	}
	sort.Strings(out)
	return out
}

// Models returns the model names for one manufacturer, sorted.
func (c *Catalog) Models(manufacturer string) []string {
	models, ok := c.manufacturers[manufacturer]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(models))
	for m := range models {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// References returns every distinct manual reference in the catalog. Models
// sharing one manual file (device families) collapse to a single entry.
func (c *Catalog) References() []domain.ManualReference {
	seen := make(map[string]bool)
	var out []domain.ManualReference
	for mfr, models := range c.manufacturers {
		for model, e := range models {
			if e.Local == "" || seen[e.Local] {
				continue
			}
			seen[e.Local] = true
			out = append(out, reference(mfr, model, e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalPath < out[j].LocalPath })
	return out
}

func reference(mfr, model string, e manualEntry) domain.ManualReference {
	return domain.ManualReference{
		Manufacturer: mfr,
		Model:        model,
		RemoteURL:    e.Remote,
		LocalPath:    e.Local,
	}
}
