// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"

	"github.com/gardener/cloud-mirror/mirror/cli"

	commoncli "github.com/gardener/cloud-mirror/common/cliutil"
	"k8s.io/component-base/logs"
)

func main() {
	logs.InitLogs()
	app, exitCode := cli.LaunchApp(context.Background())
	if exitCode != commoncli.ExitSuccess || app.Server == nil {
		logs.FlushLogs()
		os.Exit(exitCode)
	}
	defer app.Cancel()

	<-app.Ctx.Done()
	exitCode = cli.ShutdownApp(&app)
	logs.FlushLogs()
	os.Exit(exitCode)
}
