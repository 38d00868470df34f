package charts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/quantmind/rops/internal/config"
	"github.com/quantmind/rops/internal/execx"
	"github.com/quantmind/rops/internal/gitrepo"
	"github.com/quantmind/rops/internal/metablock"
)

// defaultEnvironment is assumed when a deploy names no environment.
const defaultEnvironment = "prod"

// DeployRequest captures one invocation of the deploy pipeline.
// Constructed once from CLI flags, immutable afterwards.
type DeployRequest struct {
	// Chart is the catalog key of the chart to deploy.
	Chart string
	// Env selects the target environment; empty means prod.
	Env string
	// Namespace overrides both the chart and the global default.
	Namespace string
	// Vars overrides the configured variables root path.
	Vars string
	// Set holds explicit key=value overrides passed to helm --set.
	Set []string
	// Args holds free-form extra helm arguments.
	Args []string
	// BlockOnly reconciles the routing block and skips the chart.
	BlockOnly bool
	// Wait makes helm wait for the release to become ready.
	Wait bool
	// DryRun logs commands without executing them.
	DryRun bool
}

// Deployer runs the deploy pipeline: repository materialization,
// command composition, credential refresh, helm execution and block
// reconciliation.
type Deployer struct {
	logger   *slog.Logger
	settings *config.Settings
	runner   *execx.Runner
}

// NewDeployer constructs a Deployer.
func NewDeployer(logger *slog.Logger, settings *config.Settings, runner *execx.Runner) *Deployer {
	return &Deployer{logger: logger, settings: settings, runner: runner}
}

// Deploy runs the pipeline for one chart. Any step failure aborts the
// remaining steps; work already done (clones, repo registrations) is
// left in place. The routing block, when configured, is reconciled
// even in block-only mode.
func (d *Deployer) Deploy(ctx context.Context, catalog Catalog, req DeployRequest) error {
	chart, err := catalog.Get(req.Chart)
	if err != nil {
		return err
	}
	if !req.BlockOnly {
		if err := d.deployChart(ctx, chart, req); err != nil {
			return err
		}
	}
	if chart.Block != nil {
		if err := d.applyBlock(ctx, chart.Block); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deployer) deployChart(ctx context.Context, chart Chart, req DeployRequest) error {
	namespace := ResolveNamespace(req.Namespace, chart.Namespace, d.settings.Charts.DefaultNamespace)
	env := req.Env
	if env == "" {
		env = defaultEnvironment
	}
	cluster, err := d.settings.Charts.Cluster(env)
	if err != nil {
		return err
	}
	varsPath := d.settings.Charts.VarsPath(env, req.Vars)

	for _, name := range sortedKeys(chart.GitRepos) {
		if err := gitrepo.CloneFresh(ctx, d.runner, name, chart.GitRepos[name]); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(chart.HelmRepos) {
		if err := d.addHelmRepo(ctx, name, chart.HelmRepos[name]); err != nil {
			return err
		}
	}

	inv := BuildHelmInvocation(req.Chart, chart, namespace, varsPath, req.Set, req.Args, req.Wait)

	if err := d.updateKubeconfig(ctx, cluster, req.DryRun); err != nil {
		return err
	}

	out, err := d.runner.Run(ctx, inv, execx.Options{DryRun: req.DryRun})
	if err != nil {
		return err
	}
	if !out.Succeeded {
		return fmt.Errorf("failed to deploy chart %q", ReleaseName(req.Chart, chart, namespace))
	}
	return nil
}

// ResolveNamespace applies the namespace precedence: explicit request
// beats the chart default, which beats the global default.
func ResolveNamespace(requested, chartDefault, globalDefault string) string {
	switch {
	case requested != "":
		return requested
	case chartDefault != "":
		return chartDefault
	default:
		return globalDefault
	}
}

// ReleaseName resolves the helm release name for a chart: the alias
// when present, otherwise the catalog key, suffixed with the namespace
// when the chart asks for it.
func ReleaseName(key string, chart Chart, namespace string) string {
	name := chart.Alias
	if name == "" {
		name = key
	}
	if chart.AppendNamespace {
		name = name + "-" + namespace
	}
	return name
}

// BuildHelmInvocation composes the helm upgrade command for a deploy.
// With a variables path the command runs through the secrets plugin in
// decrypt mode and layers value files: the global values/secrets pair
// first, then a chart-specific pair when that subdirectory exists, so
// later -f flags win.
func BuildHelmInvocation(key string, chart Chart, namespace, varsPath string, set, extra []string, wait bool) execx.Invocation {
	inv := execx.Invocation{Program: "helm"}
	if varsPath != "" {
		inv.Env = append(inv.Env, execx.EnvVar{Key: "DECRYPT_CHARTS", Value: "true"})
		inv.Args = append(inv.Args, "secrets")
	}
	inv.Args = append(inv.Args,
		"upgrade", ReleaseName(key, chart, namespace), chart.Chart,
		"--install", "--namespace", namespace,
	)
	if varsPath != "" {
		inv.Args = append(inv.Args,
			"-f", filepath.Join(varsPath, "values.yaml"),
			"-f", filepath.Join(varsPath, "secrets.yaml"),
		)
		chartVars := filepath.Join(varsPath, key)
		if info, err := os.Stat(chartVars); err == nil && info.IsDir() {
			inv.Args = append(inv.Args,
				"-f", filepath.Join(chartVars, "values.yaml"),
				"-f", filepath.Join(chartVars, "secrets.yaml"),
			)
		}
	}
	for _, kv := range set {
		inv.Args = append(inv.Args, "--set", kv)
	}
	inv.Args = append(inv.Args, extra...)
	if wait {
		inv.Args = append(inv.Args, "--wait")
	}
	return inv
}

func (d *Deployer) updateKubeconfig(ctx context.Context, cluster string, dryRun bool) error {
	inv := execx.Invocation{
		Program: "aws",
		Args:    []string{"eks", "update-kubeconfig", "--name", cluster},
	}
	out, err := d.runner.Run(ctx, inv, execx.Options{DryRun: dryRun})
	if err != nil {
		return err
	}
	if !out.Succeeded {
		return fmt.Errorf("failed to update kubeconfig for cluster %q", cluster)
	}
	return nil
}

func (d *Deployer) addHelmRepo(ctx context.Context, name, repoURL string) error {
	inv := execx.Invocation{
		Program: "helm",
		Args:    []string{"repo", "add", name, repoURL},
	}
	out, err := d.runner.Run(ctx, inv, execx.Options{})
	if err != nil {
		return err
	}
	if !out.Succeeded {
		return fmt.Errorf("failed to add helm repo %q", name)
	}
	return nil
}

func (d *Deployer) applyBlock(ctx context.Context, block *metablock.BlockConfig) error {
	client, err := metablock.NewClient(d.logger, d.settings.Blocks.APIURL, d.settings.Blocks.APIToken.Value())
	if err != nil {
		return err
	}
	_, err = client.Apply(ctx, d.settings.Blocks.DefaultSpace, block)
	return err
}

// InstallHelmPlugin installs a helm plugin, falling back to an update
// when the plugin is already installed.
func (d *Deployer) InstallHelmPlugin(ctx context.Context, name, repo string) error {
	install := execx.Invocation{Program: "helm", Args: []string{"plugin", "install", repo}}
	out, err := d.runner.Run(ctx, install, execx.Options{})
	if err != nil {
		return err
	}
	if out.Succeeded {
		return nil
	}
	update := execx.Invocation{Program: "helm", Args: []string{"plugin", "update", name}}
	out, err = d.runner.Run(ctx, update, execx.Options{})
	if err != nil {
		return err
	}
	if !out.Succeeded {
		return fmt.Errorf("failed to update helm plugin %q", name)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
