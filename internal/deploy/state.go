package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Stage identifies one discrete step of the provisioning pipeline.
type Stage string

const (
	StagePreflight          Stage = "preflight"
	StageBackup             Stage = "backup"
	StageInstall            Stage = "install"
	StageSecretGen          Stage = "secret-gen"
	StageRender             Stage = "render"
	StageRestartCache       Stage = "restart-cache"
	StageRestartProxy       Stage = "restart-proxy"
	StageTLS                Stage = "tls"
	StageRegisterSupervisor Stage = "register-supervisor"
	StageVerify             Stage = "verify"
	StageDone               Stage = "done"
)

// Failure classes. Every stage error wraps one of these so callers can
// match on the kind of failure without string comparison.
var (
	ErrPreflight = errors.New("preflight failure")
	ErrInstall   = errors.New("install failure")
	ErrRender    = errors.New("render failure")
	ErrTLS       = errors.New("tls failure")
	ErrVerify    = errors.New("verification failure")
)

// StageError carries the failing stage identifier alongside the cause.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// BackupRecord describes a prior installation moved aside before install.
// Records are informational only; nothing deletes or restores backups
// automatically.
type BackupRecord struct {
	OriginalPath string
	BackupPath   string
	Timestamp    time.Time
}

// ServiceDescriptor names one externally managed service the run depends
// on. Ping, when set, performs a deeper liveness probe after the unit
// reports active.
type ServiceDescriptor struct {
	Name string
	Unit string
	Ping func(ctx context.Context) error
}

// VerificationResult is the per-service outcome of the verification stage.
type VerificationResult struct {
	Name   string
	Active bool
}

// DeploymentState is the transient state of a single run, owned exclusively
// by the driver and discarded when the run ends.
type DeploymentState struct {
	RunID     string
	Stage     Stage
	Secret    Secret
	Backup    *BackupRecord
	Results   []VerificationResult
	Errors    []StageError
	StartedAt time.Time
}
