package deploy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Options are the per-run switches of the deploy command.
type Options struct {
	// DryRun renders all artifacts into the run's staging directory and
	// skips every stage that would touch live services.
	DryRun bool
	// SkipTLS succeeds the TLS stage without invoking certbot.
	SkipTLS bool
}

// Reporter receives stage lifecycle events. The plain CLI prints them; the
// TUI renders them live. Implementations must not block.
type Reporter interface {
	StageStarted(stage Stage)
	StageFinished(stage Stage, err error)
	StageSkipped(stage Stage, reason string)
}

type noopReporter struct{}

func (noopReporter) StageStarted(Stage)         {}
func (noopReporter) StageFinished(Stage, error) {}
func (noopReporter) StageSkipped(Stage, string) {}

// artifactPaths are the final destinations of the three rendered configs.
type artifactPaths struct {
	proxyConf string
	proxyLink string
	cacheConf string
	unitFile  string
}

// Driver sequences the provisioning pipeline. Strictly single-threaded:
// each stage is a blocking call and no later stage runs after a failure.
// The driver owns the DeploymentState for the run, including the one
// generated secret that render, register and verify consume.
type Driver struct {
	cfg  Config
	opts Options
	run  Runner
	log  *zap.Logger
	rep  Reporter

	pre  *Preflight
	inst *Installer
	ver  *Verifier

	// pingCache is swapped out in tests so verification does not dial a
	// real cache.
	pingCache func(port int, secret Secret) func(context.Context) error

	state DeploymentState
	paths artifactPaths
}

func NewDriver(cfg Config, opts Options, runID string, run Runner, log *zap.Logger, rep Reporter) *Driver {
	if rep == nil {
		rep = noopReporter{}
	}
	return &Driver{
		cfg:       cfg,
		opts:      opts,
		run:       run,
		log:       log,
		rep:       rep,
		pre:       NewPreflight(cfg, run, log),
		inst:      NewInstaller(cfg, run, log),
		ver:       NewVerifier(run, log),
		pingCache: CachePing,
		state:     DeploymentState{RunID: runID},
	}
}

type stageSpec struct {
	stage   Stage
	timeout time.Duration
	skip    string // non-empty: skip with this reason
	fn      func(ctx context.Context) error
}

// Stages returns the pipeline order, for display purposes.
func (d *Driver) Stages() []Stage {
	specs := d.stages()
	out := make([]Stage, len(specs))
	for i, s := range specs {
		out[i] = s.stage
	}
	return out
}

func (d *Driver) stages() []stageSpec {
	skipLive := ""
	if d.opts.DryRun {
		skipLive = "dry run"
	}
	skipTLS := skipLive
	if skipTLS == "" && d.opts.SkipTLS {
		skipTLS = "--skip-tls"
	}

	// Issuance can take minutes at the CA; package installs depend on
	// mirror speed. Everything else settles in seconds.
	return []stageSpec{
		{StagePreflight, time.Minute, "", d.preflight},
		{StageBackup, time.Minute, skipLive, d.backup},
		{StageInstall, 20 * time.Minute, skipLive, d.install},
		{StageSecretGen, 10 * time.Second, "", d.secretGen},
		{StageRender, time.Minute, "", d.render},
		{StageRestartCache, 2 * time.Minute, skipLive, d.restartCache},
		{StageRestartProxy, 2 * time.Minute, skipLive, d.restartProxy},
		{StageTLS, 10 * time.Minute, skipTLS, d.issueTLS},
		{StageRegisterSupervisor, 5 * time.Minute, skipLive, d.registerSupervisor},
		{StageVerify, 5 * time.Minute, skipLive, d.verify},
	}
}

// Run executes the pipeline. On any stage failure it halts immediately and
// returns the StageError; no stage is retried and no later stage runs. An
// external interrupt cancels ctx and surfaces as a failure at the
// interrupted stage.
func (d *Driver) Run(ctx context.Context) (*DeploymentState, error) {
	d.state.StartedAt = time.Now().UTC()
	d.paths = d.artifacts()

	for _, spec := range d.stages() {
		d.state.Stage = spec.stage

		if spec.skip != "" {
			d.log.Info("stage skipped",
				zap.String("stage", string(spec.stage)),
				zap.String("reason", spec.skip))
			d.rep.StageSkipped(spec.stage, spec.skip)
			continue
		}

		d.rep.StageStarted(spec.stage)
		d.log.Info("stage started", zap.String("stage", string(spec.stage)))

		stageCtx, cancel := context.WithTimeout(ctx, spec.timeout)
		err := spec.fn(stageCtx)
		cancel()
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}

		d.rep.StageFinished(spec.stage, err)
		if err != nil {
			stageErr := &StageError{Stage: spec.stage, Err: err}
			d.state.Errors = append(d.state.Errors, *stageErr)
			d.log.Error("stage failed",
				zap.String("stage", string(spec.stage)),
				zap.Error(err))
			return &d.state, stageErr
		}
		d.log.Info("stage complete", zap.String("stage", string(spec.stage)))
	}

	d.state.Stage = StageDone
	d.log.Info("deployment complete", zap.String("run_id", d.state.RunID))
	return &d.state, nil
}

func (d *Driver) artifacts() artifactPaths {
	if d.opts.DryRun {
		staging := filepath.Join(d.cfg.LogDir, "runs", d.state.RunID, "rendered")
		return artifactPaths{
			proxyConf: filepath.Join(staging, d.cfg.Domain+".conf"),
			cacheConf: filepath.Join(staging, "redis.conf"),
			unitFile:  filepath.Join(staging, d.cfg.UnitName()),
		}
	}
	return artifactPaths{
		proxyConf: filepath.Join(d.cfg.NginxSitesDir, d.cfg.Domain),
		proxyLink: filepath.Join(d.cfg.NginxEnabledDir, d.cfg.Domain),
		cacheConf: d.cfg.RedisConfPath,
		unitFile:  filepath.Join(d.cfg.SystemdDir, d.cfg.UnitName()),
	}
}

func (d *Driver) preflight(ctx context.Context) error {
	return d.pre.Check(ctx)
}

func (d *Driver) backup(ctx context.Context) error {
	record, err := BackupIfExists(d.cfg.InstallDir, d.state.RunID)
	if err != nil {
		return err
	}
	if record != nil {
		d.state.Backup = record
		d.log.Info("prior install moved aside",
			zap.String("from", record.OriginalPath),
			zap.String("to", record.BackupPath))
	}
	return nil
}

func (d *Driver) install(ctx context.Context) error {
	return d.inst.Install(ctx)
}

func (d *Driver) secretGen(ctx context.Context) error {
	if !d.state.Secret.IsZero() {
		return errors.New("secret already generated for this run")
	}
	secret, err := GenerateSecret()
	if err != nil {
		return err
	}
	d.state.Secret = secret
	return nil
}

func (d *Driver) render(ctx context.Context) error {
	if err := RenderProxyConfig(d.cfg, d.paths.proxyConf); err != nil {
		return err
	}
	if d.paths.proxyLink != "" {
		if err := EnableProxySite(d.paths.proxyConf, d.paths.proxyLink); err != nil {
			return err
		}
	}
	if err := RenderCacheConfig(d.cfg, d.state.Secret, d.paths.cacheConf); err != nil {
		return err
	}
	return RenderUnit(d.cfg, d.state.Secret, d.paths.unitFile)
}

func (d *Driver) restartCache(ctx context.Context) error {
	return RestartCache(ctx, d.run)
}

func (d *Driver) restartProxy(ctx context.Context) error {
	return RestartProxy(ctx, d.run)
}

func (d *Driver) issueTLS(ctx context.Context) error {
	return IssueCertificate(ctx, d.run, d.cfg)
}

func (d *Driver) registerSupervisor(ctx context.Context) error {
	return RegisterSupervisor(ctx, d.run, d.cfg)
}

func (d *Driver) verify(ctx context.Context) error {
	services := BaseServices(d.cfg)
	services[0].Ping = d.pingCache(d.cfg.RedisPort, d.state.Secret)
	results, err := d.ver.Verify(ctx, services)
	d.state.Results = results
	return err
}

// Summary is the final human-readable report for a successful run. The
// generated secret is printed intentionally, once, for operator capture; it
// appears nowhere in the logs.
func (d *Driver) Summary(runLogPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "deployment complete: %s\n\n", d.cfg.Domain)
	if d.opts.DryRun {
		staging := filepath.Dir(d.paths.proxyConf)
		fmt.Fprintf(&b, "dry run: rendered configs in %s\n", staging)
	}
	if d.state.Backup != nil {
		fmt.Fprintf(&b, "prior install preserved at %s\n", d.state.Backup.BackupPath)
	}
	fmt.Fprintf(&b, "redis password: %s\n", d.state.Secret.Value())
	fmt.Fprintf(&b, "run log:        %s\n", runLogPath)
	fmt.Fprintf(&b, "\nstatus checks:\n")
	fmt.Fprintf(&b, "  systemctl status %s\n", d.cfg.UnitName())
	fmt.Fprintf(&b, "  journalctl -u %s -f\n", d.cfg.UnitName())
	fmt.Fprintf(&b, "  curl %s\n", d.cfg.HealthURL())
	return b.String()
}
