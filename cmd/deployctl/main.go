package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/aarohx10/sendora-deploy/internal/deploy"
	"github.com/aarohx10/sendora-deploy/internal/tui"
)

var flagConfig = &cli.StringFlag{
	Name:  "config",
	Value: "deploy.yml",
	Usage: "path to the deployment config file",
}
var flagDryRun = &cli.BoolFlag{
	Name:  "dry-run",
	Usage: "render configs into the run's staging directory without touching live services",
}
var flagSkipTLS = &cli.BoolFlag{
	Name:  "skip-tls",
	Usage: "skip certificate issuance",
}
var flagTUI = &cli.BoolFlag{
	Name:  "tui",
	Usage: "render pipeline progress as a live view",
}

func main() {
	app := &cli.App{
		Name:           "deployctl",
		Usage:          "provision and supervise the sendora voice host",
		DefaultCommand: "deploy",
		Commands: []*cli.Command{
			{
				Name:   "deploy",
				Usage:  "run the full provisioning pipeline",
				Flags:  []cli.Flag{flagConfig, flagDryRun, flagSkipTLS, flagTUI},
				Action: runDeploy,
			},
			{
				Name:   "doctor",
				Usage:  "report host preconditions without mutating anything",
				Flags:  []cli.Flag{flagConfig},
				Action: runDoctor,
			},
			{
				Name:   "verify",
				Usage:  "check that all managed services are active",
				Flags:  []cli.Flag{flagConfig},
				Action: runVerify,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDeploy(cCtx *cli.Context) error {
	cfg, err := deploy.LoadConfig(cCtx.String(flagConfig.Name))
	if err != nil {
		return err
	}

	// The privilege gate runs before the log sinks open so a non-root
	// invocation leaves no directories behind.
	if euid := os.Geteuid(); euid != 0 {
		return cli.Exit(fmt.Sprintf("deploy failed at %s: administrative privilege required (euid %d)",
			deploy.StagePreflight, euid), 1)
	}

	opts := deploy.Options{
		DryRun:  cCtx.Bool(flagDryRun.Name),
		SkipTLS: cCtx.Bool(flagSkipTLS.Name),
	}
	useTUI := cCtx.Bool(flagTUI.Name)

	runID := uuid.NewString()
	logs, err := deploy.NewRunLogger(cfg.LogDir, runID, !useTUI)
	if err != nil {
		return err
	}
	defer logs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := deploy.NewExecRunner(logs.Logger, logs.ToolOutput)

	var state *deploy.DeploymentState
	var runErr error
	var driver *deploy.Driver

	if useTUI {
		events := make(chan tui.Event, 64)
		driver = deploy.NewDriver(cfg, opts, runID, runner, logs.Logger, tuiReporter{events: events})

		done := make(chan struct{})
		go func() {
			state, runErr = driver.Run(ctx)
			close(events)
			close(done)
		}()

		stages := make([]string, 0, len(driver.Stages()))
		for _, s := range driver.Stages() {
			stages = append(stages, string(s))
		}
		if err := tui.Run("Deploying "+cfg.Domain, stages, events); err != nil {
			logs.Logger.Warn("progress view failed", zap.Error(err))
		}
		<-done
	} else {
		driver = deploy.NewDriver(cfg, opts, runID, runner, logs.Logger, nil)
		state, runErr = driver.Run(ctx)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "deploy failed at %s: %v\n", state.Stage, runErr)
		return cli.Exit("", 1)
	}

	fmt.Print(driver.Summary(logs.RunLogPath))
	return nil
}

func runDoctor(cCtx *cli.Context) error {
	cfg, err := deploy.LoadConfig(cCtx.String(flagConfig.Name))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := deploy.NewConsoleLogger()
	runner := deploy.NewExecRunner(log, os.Stdout)
	return deploy.NewPreflight(cfg, runner, log).Report(ctx)
}

func runVerify(cCtx *cli.Context) error {
	cfg, err := deploy.LoadConfig(cCtx.String(flagConfig.Name))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := deploy.NewConsoleLogger()
	runner := deploy.NewExecRunner(log, os.Stdout)
	verifier := deploy.NewVerifier(runner, log)

	results, verifyErr := verifier.Verify(ctx, deploy.BaseServices(cfg))
	for _, r := range results {
		status := "active"
		if !r.Active {
			status = "inactive"
		}
		fmt.Printf("%-12s %s\n", r.Name, status)
	}
	if verifyErr != nil {
		return cli.Exit(verifyErr.Error(), 1)
	}
	return nil
}

type tuiReporter struct {
	events chan<- tui.Event
}

func (r tuiReporter) StageStarted(stage deploy.Stage) {
	r.events <- tui.Event{Stage: string(stage), Status: tui.StatusRunning}
}

func (r tuiReporter) StageFinished(stage deploy.Stage, err error) {
	status := tui.StatusDone
	if err != nil {
		status = tui.StatusFailed
	}
	r.events <- tui.Event{Stage: string(stage), Status: status, Err: err}
}

func (r tuiReporter) StageSkipped(stage deploy.Stage, reason string) {
	r.events <- tui.Event{Stage: string(stage), Status: tui.StatusSkipped, Reason: reason}
}
