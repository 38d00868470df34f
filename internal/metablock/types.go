package metablock

import "gopkg.in/yaml.v3"

// BlockConfig is the desired state of a routing block as declared in a
// chart definition. It is sent verbatim to the metablock API on both
// create and update.
type BlockConfig struct {
	Name     string   `yaml:"name" json:"name"`
	Space    string   `yaml:"space,omitempty" json:"space,omitempty"`
	Upstream string   `yaml:"upstream" json:"upstream"`
	Routes   []Route  `yaml:"routes" json:"routes"`
	Tags     []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Root     bool     `yaml:"root" json:"root"`
	HTML     bool     `yaml:"html" json:"html"`
	UsedCDN  bool     `yaml:"used_cdn" json:"used_cdn"`
}

// Route is a single routing rule within a block.
type Route struct {
	Name         string   `yaml:"name" json:"name"`
	Protocols    []string `yaml:"protocols" json:"protocols"`
	Paths        []string `yaml:"paths" json:"paths"`
	Plugins      []Plugin `yaml:"plugins,omitempty" json:"plugins"`
	PreserveHost bool     `yaml:"preserve_host" json:"preserve_host"`
	StripPath    bool     `yaml:"strip_path" json:"strip_path"`
}

// UnmarshalYAML applies the preserve_host=true default for routes that
// do not set it explicitly.
func (r *Route) UnmarshalYAML(value *yaml.Node) error {
	type rawRoute Route
	raw := rawRoute{PreserveHost: true}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*r = Route(raw)
	return nil
}

// Plugin is a named plugin with an opaque configuration document.
// Plugin shapes are not statically known, so the config stays a free
// key-value tree.
type Plugin struct {
	Name   string         `yaml:"name" json:"name"`
	Config map[string]any `yaml:"config" json:"config"`
}

// Space is the remote space a block belongs to.
type Space struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Hosted bool   `json:"hosted"`
	Domain string `json:"domain"`
}

// Block is the canonical record the API returns for a block.
type Block struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Space    Space  `json:"space"`
	FullName string `json:"full_name"`
}
