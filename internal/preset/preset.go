package preset

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/profview/profview/internal/report"
)

// A View names one report rendering: the format plus extra omission paths.
type View struct {
	Description string   `yaml:"description,omitempty"`
	Format      string   `yaml:"format"`
	Omit        []string `yaml:"omit,omitempty"`
}

// File is the on-disk shape of a preset collection.
type File struct {
	Version string          `yaml:"version,omitempty"`
	Views   map[string]View `yaml:"views"`
}

// Library resolves view names. Loaded files lay over the built-ins, so
// a file may redefine "full" if it wants to.
type Library struct {
	views map[string]View
}

func builtins() map[string]View {
	return map[string]View{
		"full": {
			Description: "complete report, nothing hidden",
			Format:      "none",
		},
		"compact-view": {
			Description: "rounded values with verbose statistics dropped",
			Format:      "compact",
		},
		"flat-view": {
			Description: "single-level keys for spreadsheets and diffing",
			Format:      "flat",
		},
		"summary": {
			Description: "headline numbers only",
			Format:      "pretty",
			Omit: []string{
				"global_stats.times",
				"data_stats.*.statistics.histogram",
				"data_stats.*.statistics.quantiles",
				"data_stats.*.statistics.null_types_index",
			},
		},
	}
}

// Builtin returns a Library holding only the built-in views.
func Builtin() *Library {
	return &Library{views: builtins()}
}

// LoadFile loads and parses a YAML preset file from the given path.
func LoadFile(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading preset file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML data and lays its views over the built-ins.
func Parse(data []byte) (*Library, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing preset YAML: %w", err)
	}

	views := builtins()
	for name, v := range f.Views {
		applyDefaults(&v)
		if _, err := report.ParseFormat(v.Format); err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
		views[name] = v
	}
	return &Library{views: views}, nil
}

// applyDefaults fills in default values for optional fields.
func applyDefaults(v *View) {
	if v.Format == "" {
		v.Format = "none"
	}
}

// Resolve looks up a view by name.
func (l *Library) Resolve(name string) (View, bool) {
	v, ok := l.views[name]
	return v, ok
}

// Names lists the available views in sorted order.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.views))
	for name := range l.views {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
