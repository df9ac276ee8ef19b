// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package logutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

func TestWrapContextWithFileLogger(t *testing.T) {
	var lines []string
	base := funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{})
	ctx := logr.NewContext(context.Background(), base)
	logPath := filepath.Join(t.TempDir(), "trace.log")

	logCtx, closer, err := WrapContextWithFileLogger(ctx, "[test] ", logPath)
	if err != nil {
		t.Fatalf("WrapContextWithFileLogger: %v", err)
	}
	logr.FromContextOrDiscard(logCtx).WithValues("kind", "pod").Info("pass completed", "created", 2)
	if err = closer.Close(); err != nil {
		t.Fatal(err)
	}

	if got := TraceLogPathFromContext(logCtx); got != logPath {
		t.Errorf("TraceLogPathFromContext = %q, want %q", got, logPath)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"[test] ", "pass completed", "kind", "created"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("trace log lacks %q:\n%s", want, data)
		}
	}
	if len(lines) != 1 || !strings.Contains(lines[0], `"kind"="pod"`) {
		t.Errorf("base sink got %q", lines)
	}
}

func TestTraceLogPathFromContextEmpty(t *testing.T) {
	if got := TraceLogPathFromContext(context.Background()); got != "" {
		t.Errorf("TraceLogPathFromContext = %q, want empty", got)
	}
}
