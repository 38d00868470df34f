// Package charts deploys helm charts to Kubernetes clusters and keeps
// their routing blocks in sync.
package charts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quantmind/rops/internal/metablock"
)

// Chart is a single deployable chart definition from the catalog.
// Loaded once from the catalog file and read-only during a deploy.
type Chart struct {
	// Chart is the helm chart reference (repo/chart or a local path).
	Chart string `yaml:"chart" json:"chart"`
	// Alias overrides the catalog key as the release name.
	Alias string `yaml:"alias,omitempty" json:"alias,omitempty"`
	// Namespace is the chart-default namespace.
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	// Description is free-form documentation.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// HelmRepos maps helm repo names to their URLs.
	HelmRepos map[string]string `yaml:"helm-repos,omitempty" json:"helm-repos,omitempty"`
	// GitRepos maps local directory names to git clone URLs.
	GitRepos map[string]string `yaml:"git-repos,omitempty" json:"git-repos,omitempty"`
	// Block is an optional routing block attached to the chart.
	Block *metablock.BlockConfig `yaml:"block,omitempty" json:"block,omitempty"`
	// AppendNamespace suffixes the release name with the namespace.
	AppendNamespace bool `yaml:"append-namespace" json:"append-namespace"`
}

// UnmarshalYAML applies the append-namespace=true default for charts
// that do not set it explicitly.
func (c *Chart) UnmarshalYAML(value *yaml.Node) error {
	type rawChart Chart
	raw := rawChart{AppendNamespace: true}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*c = Chart(raw)
	return nil
}

// Catalog is the chart catalog keyed by chart name.
type Catalog map[string]Chart

// NotFoundError is a request for a chart absent from the catalog.
type NotFoundError struct {
	Chart string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("chart %q not found", e.Chart)
}

// Get looks up a chart by name.
func (c Catalog) Get(name string) (Chart, error) {
	chart, ok := c[name]
	if !ok {
		return Chart{}, &NotFoundError{Chart: name}
	}
	return chart, nil
}

// LoadCatalog reads the chart catalog from a YAML file.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chart catalog %q: %w", path, err)
	}
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse chart catalog %q: %w", path, err)
	}
	return catalog, nil
}
