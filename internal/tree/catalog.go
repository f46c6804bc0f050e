package tree

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

type catalog struct {
	Sectors []Sector `yaml:"sectors"`
}

// ParseCatalog decodes a YAML sector catalog.
func ParseCatalog(data []byte) ([]Sector, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Sectors) == 0 {
		return nil, fmt.Errorf("parse catalog: no sectors")
	}
	return c.Sectors, nil
}

// Default builds a tree from the embedded S&P 500 catalog.
func Default() *Tree {
	sectors, err := ParseCatalog(catalogYAML)
	if err != nil {
		panic(err)
	}
	return New(sectors)
}
