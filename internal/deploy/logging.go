package deploy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RunLogger bundles the dual-sink logger for one deployment run: a rotating
// process-level deploy.log plus an append-only per-run file, both mirrored
// to the console. ToolOutput is the writer external commands stream into.
type RunLogger struct {
	Logger     *zap.Logger
	ToolOutput io.Writer
	RunLogPath string

	runFile *os.File
}

// NewRunLogger opens both log sinks under logDir. The per-run file is named
// by the run ID so every invocation leaves its own auditable record.
// console controls the stdout mirror; the TUI turns it off so log lines do
// not fight the live view.
func NewRunLogger(logDir, runID string, console bool) (*RunLogger, error) {
	runsDir := filepath.Join(logDir, "runs")
	if err := ensureDir(runsDir, 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	rotating := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "deploy.log"),
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     30,
	}

	runLogPath := filepath.Join(runsDir, "deploy-"+runID+".log")
	runFile, err := os.OpenFile(runLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	encoder := zapcore.NewConsoleEncoder(encoderCfg)

	fileSink := zapcore.AddSync(io.MultiWriter(rotating, runFile))
	cores := []zapcore.Core{zapcore.NewCore(encoder, fileSink, zapcore.InfoLevel)}
	toolSinks := []io.Writer{rotating, runFile}
	if console {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), zapcore.InfoLevel))
		toolSinks = append(toolSinks, os.Stdout)
	}

	return &RunLogger{
		Logger:     zap.New(zapcore.NewTee(cores...)),
		ToolOutput: io.MultiWriter(toolSinks...),
		RunLogPath: runLogPath,
		runFile:    runFile,
	}, nil
}

// NewConsoleLogger is a stdout-only logger for the read-only subcommands.
func NewConsoleLogger() *zap.Logger {
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stdout), zapcore.InfoLevel)
	return zap.New(core)
}

// Close flushes the logger and closes the per-run file.
func (l *RunLogger) Close() {
	_ = l.Logger.Sync()
	_ = l.runFile.Close()
}
