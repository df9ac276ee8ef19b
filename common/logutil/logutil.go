// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package logutil

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	commonconstants "github.com/gardener/cloud-mirror/api/common/constants"
	"github.com/gardener/cloud-mirror/common/ioutil"
	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

// WrapContextWithFileLogger wraps the logr logger obtained from the given context with a multi-sink logr logger that
// logs to the original sink as well as a sink to the given filePath.
// It returns a new context containing this new multi-sink logr logger, a closer for the log file at path or any error encountered during setup.
func WrapContextWithFileLogger(ctx context.Context, prefix string, logPath string) (logCtx context.Context, closer io.Closer, err error) {
	logFile, err := os.Create(filepath.Clean(logPath))
	if err != nil {
		return
	}
	closer = logFile
	fileLogger := stdr.New(log.New(logFile, prefix, log.LstdFlags))
	fileSink := fileLogger.GetSink()

	base := logr.FromContextOrDiscard(ctx) // get the base logger from the context
	sinks := []logr.LogSink{fileSink}
	if base.GetSink() != nil {
		sinks = append(sinks, base.GetSink())
	}
	mSink := &multiSink{sinks: sinks}

	combined := logr.New(mSink).WithCallDepth(1)
	logCtx = context.WithValue(logr.NewContext(ctx, combined), commonconstants.TraceLogPathCtxKey, logPath)
	return
}

// multiSink forwards to multiple sinks (e.g., original + file).
type multiSink struct {
	sinks []logr.LogSink
}

var _ logr.LogSink = (*multiSink)(nil)

func (m *multiSink) Init(info logr.RuntimeInfo) {
	for _, s := range m.sinks {
		s.Init(info)
	}
}

func (m *multiSink) Enabled(level int) bool {
	for _, s := range m.sinks {
		if s.Enabled(level) {
			return true
		}
	}
	return false
}

func (m *multiSink) Info(level int, msg string, kvs ...any) {
	for _, s := range m.sinks {
		if s.Enabled(level) {
			s.Info(level, msg, kvs...)
		}
	}
}

func (m *multiSink) Error(err error, msg string, kvs ...any) {
	for _, s := range m.sinks {
		s.Error(err, msg, kvs...)
	}
}

func (m *multiSink) WithName(name string) logr.LogSink {
	newSinks := make([]logr.LogSink, len(m.sinks))
	for i, s := range m.sinks {
		newSinks[i] = s.WithName(name)
	}
	return &multiSink{sinks: newSinks}
}

func (m *multiSink) WithValues(keyValues ...any) logr.LogSink {
	newSinks := make([]logr.LogSink, len(m.sinks))
	for i, s := range m.sinks {
		newSinks[i] = s.WithValues(keyValues...)
	}
	return &multiSink{sinks: newSinks}
}

// GetTraceLogsParentDir gets the parent directory for trace logs of the given program.
func GetTraceLogsParentDir(programName string) string {
	return filepath.Join(ioutil.GetTempDir(), programName, "trace")
}

// NewTraceLogPath creates the trace log directory of the given program and returns the path of a trace log file
// named after the given time.
func NewTraceLogPath(programName string, now time.Time) (string, error) {
	dir := GetTraceLogsParentDir(programName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	return filepath.Join(dir, now.UTC().Format("20060102-150405.000")+".log"), nil
}

// TraceLogPathFromContext returns the trace log path recorded by WrapContextWithFileLogger, if any.
func TraceLogPathFromContext(ctx context.Context) string {
	path, _ := ctx.Value(commonconstants.TraceLogPathCtxKey).(string)
	return path
}
