// Package config contains the loader and strongly typed model for the
// rops settings file and its environment-sourced defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	envparse "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings is the process-wide configuration, constructed once at
// startup and passed by reference into every component. Components
// never read the environment themselves.
type Settings struct {
	// Git carries worktree metadata and the github token.
	Git GitSettings `yaml:"git" json:"git"`
	// Charts configures chart deployments.
	Charts ChartsSettings `yaml:"charts" json:"charts"`
	// Blocks configures the metablock routing API.
	Blocks BlockSettings `yaml:"blocks" json:"blocks"`
}

// GitSettings describes the local git worktree.
type GitSettings struct {
	// DefaultBranch is the repository's main branch name.
	DefaultBranch string `yaml:"default_branch" json:"default_branch"`
	// Branch is the currently checked out branch.
	Branch string `yaml:"branch,omitempty" json:"branch"`
	// SHA is the current HEAD commit.
	SHA string `yaml:"sha,omitempty" json:"sha"`
	// GithubToken authenticates GitHub API calls.
	GithubToken Secret `yaml:"-" json:"github_token"`
}

// IsDefaultBranch reports whether the checked out branch is the
// repository's default branch.
func (g GitSettings) IsDefaultBranch() bool { return g.Branch == g.DefaultBranch }

// ChartsSettings configures where charts are defined and deployed.
type ChartsSettings struct {
	// Envs maps environment names to cluster names.
	Envs map[string]string `yaml:"envs" json:"envs"`
	// Config is the path of the chart catalog YAML file.
	Config string `yaml:"config" json:"config"`
	// Vars is an optional root path for additional values and secrets.
	Vars string `yaml:"vars,omitempty" json:"vars,omitempty"`
	// DefaultNamespace is used when neither the request nor the chart
	// names a namespace.
	DefaultNamespace string `yaml:"default_namespace" json:"default_namespace"`
}

// EnvNotConfiguredError is a deploy request for an environment with no
// cluster mapping.
type EnvNotConfiguredError struct {
	Env       string
	Available []string
}

func (e *EnvNotConfiguredError) Error() string {
	return fmt.Sprintf("environment %q not found in charts settings - available are %s",
		e.Env, strings.Join(e.Available, ", "))
}

// Cluster resolves the cluster name for an environment. Unknown
// environments are a configuration error enumerating the valid names.
func (s ChartsSettings) Cluster(env string) (string, error) {
	if cluster, ok := s.Envs[env]; ok {
		return cluster, nil
	}
	available := make([]string, 0, len(s.Envs))
	for name := range s.Envs {
		available = append(available, name)
	}
	sort.Strings(available)
	return "", &EnvNotConfiguredError{Env: env, Available: available}
}

// VarsPath resolves the per-environment variables directory. A
// non-empty override beats the configured root; an empty result means
// no variables are configured. The root is made absolute when
// possible so helm resolves value files regardless of working
// directory.
func (s ChartsSettings) VarsPath(env, override string) string {
	root := override
	if root == "" {
		root = s.Vars
	}
	if root == "" {
		return ""
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return filepath.Join(root, env)
}

// BlockSettings configures the metablock API client.
type BlockSettings struct {
	// APIURL is the metablock API base URL.
	APIURL string `yaml:"api_url" json:"api_url"`
	// DefaultSpace receives blocks that do not name a space.
	DefaultSpace string `yaml:"default_space" json:"default_space"`
	// APIToken authenticates API calls. Env-only, never read from the
	// settings file.
	APIToken Secret `yaml:"-" json:"api_token"`
}

// envDefaults are the environment-sourced configuration defaults,
// parsed once during Load.
type envDefaults struct {
	// MetablockAPIURL is the API base URL from METABLOCK_API_URL.
	MetablockAPIURL string `env:"METABLOCK_API_URL" envDefault:"https://api.metablock.io"`
	// MetablockSpace is the default space from METABLOCK_SPACE.
	MetablockSpace string `env:"METABLOCK_SPACE" envDefault:"metablock"`
	// MetablockToken is the API token from METABLOCK_API_TOKEN.
	MetablockToken string `env:"METABLOCK_API_TOKEN"`
	// ChartsConfig is the chart catalog path from CHARTS_CONFIG.
	ChartsConfig string `env:"CHARTS_CONFIG" envDefault:"devops/charts/charts.yaml"`
	// ChartsDefaultNamespace is from CHARTS_DEFAULT_NAMESPACE.
	ChartsDefaultNamespace string `env:"CHARTS_DEFAULT_NAMESPACE" envDefault:"services"`
	// GitDefaultBranch is from GIT_DEFAULT_BRANCH.
	GitDefaultBranch string `env:"GIT_DEFAULT_BRANCH" envDefault:"main"`
	// GithubToken is from GITHUB_TOKEN.
	GithubToken string `env:"GITHUB_TOKEN"`
}

// Load builds the Settings for this process: a .env file when present,
// environment-sourced defaults, then the settings file on top. A
// missing or malformed settings file is tolerated with a log line so
// the tool stays usable with pure env configuration.
func Load(path string, logger *slog.Logger) (*Settings, error) {
	_ = godotenv.Load()

	var defaults envDefaults
	if err := envparse.Parse(&defaults); err != nil {
		return nil, fmt.Errorf("parse environment defaults: %w", err)
	}

	settings := &Settings{
		Git: GitSettings{
			DefaultBranch: defaults.GitDefaultBranch,
			GithubToken:   Secret(defaults.GithubToken),
		},
		Charts: ChartsSettings{
			Config:           defaults.ChartsConfig,
			DefaultNamespace: defaults.ChartsDefaultNamespace,
		},
		Blocks: BlockSettings{
			APIURL:       defaults.MetablockAPIURL,
			DefaultSpace: defaults.MetablockSpace,
			APIToken:     Secret(defaults.MetablockToken),
		},
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		loaded := *settings
		if yamlErr := yaml.Unmarshal(data, &loaded); yamlErr != nil {
			logger.Error("failed to parse configuration", "path", path, "error", yamlErr)
		} else {
			*settings = loaded
		}
	case os.IsNotExist(err):
		logger.Warn("configuration file not found", "path", path)
	default:
		logger.Error("failed to read configuration file", "path", path, "error", err)
	}

	// Secrets stay env-only even when the file round-trips settings.
	settings.Git.GithubToken = Secret(defaults.GithubToken)
	settings.Blocks.APIToken = Secret(defaults.MetablockToken)

	return settings, nil
}
