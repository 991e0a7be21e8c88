// Package charts turns chart definitions into reconciled, chart-ready tables.
package charts

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xz3dev/quacklytics-sub000/code/reconcile"
	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

// Definition is a saved chart as stored in a YAML file
type Definition struct {
	Name   string             `yaml:"name"`
	Bucket reconcile.Interval `yaml:"bucket"`
	// Start and End are optional; when unset the loaded data range is used
	Start  *time.Time  `yaml:"start,omitempty"`
	End    *time.Time  `yaml:"end,omitempty"`
	Series []SeriesDef `yaml:"series"`
}

// LoadDefinition reads a chart definition file
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDefinition(data)
}

// ParseDefinition decodes a YAML chart definition and checks it can be rendered
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse chart definition: %w", err)
	}
	if def.Bucket == "" {
		def.Bucket = reconcile.Day
	}
	iv, err := reconcile.ParseInterval(string(def.Bucket))
	if err != nil {
		return nil, err
	}
	def.Bucket = iv
	if len(def.Series) == 0 {
		return nil, fmt.Errorf("chart %q has no series", def.Name)
	}
	for i, s := range def.Series {
		if s.Name == "" {
			def.Series[i].Name = fmt.Sprintf("series_%d", i+1)
		}
	}
	return &def, nil
}

// Request builds a render request, filling missing range ends from loaded
func (d *Definition) Request(loaded typesdb.TimeRange) RenderRequest {
	r := loaded
	if d.Start != nil {
		r.Start = d.Start.UTC()
	}
	if d.End != nil {
		r.End = d.End.UTC()
	}
	return RenderRequest{Series: d.Series, Bucket: d.Bucket, Range: r}
}
