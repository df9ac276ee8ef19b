// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package cmd holds the commands of mirrorctl.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	commontypes "github.com/gardener/cloud-mirror/api/common/types"
	configv1alpha1 "github.com/gardener/cloud-mirror/api/config/v1alpha1"
	"github.com/gardener/cloud-mirror/api/mirror"
	commoncli "github.com/gardener/cloud-mirror/common/cliutil"
	"github.com/gardener/cloud-mirror/common/ioutil"
	"github.com/gardener/cloud-mirror/common/logutil"
	"github.com/gardener/cloud-mirror/mirror/cli"
	"github.com/gardener/cloud-mirror/mirror/client"
	"github.com/gardener/cloud-mirror/mirror/reconciler"
	"github.com/gardener/cloud-mirror/mirror/server"

	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/component-base/logs"
	"k8s.io/utils/clock"
	"k8s.io/utils/ptr"
)

const programName = "mirrorctl"

var (
	launchOpts  cli.LaunchOptions
	qpsBurst    commontypes.QPSBurst
	trace       bool
	traceCloser io.Closer
)

// RootCmd is the base command of mirrorctl.
var RootCmd = &cobra.Command{
	Use:   programName,
	Short: "Run one-shot operations of the cloud mirror",
	Long: `mirrorctl runs single reconciliation passes, scheduler evaluations and record listings using the
configuration of the cloud-mirror daemon. Records only outlive a mirrorctl invocation with the badger store backend.`,
	SilenceUsage:      true,
	PersistentPreRunE: withTraceLog,
}

// Execute runs RootCmd with a context cancelled on SIGINT and SIGTERM.
func Execute() {
	logs.InitLogs()
	ctx, cancel := commoncli.NewAppContext(context.Background(), programName)
	err := RootCmd.ExecuteContext(ctx)
	ioutil.CloseQuietly(traceCloser)
	cancel()
	logs.FlushLogs()
	if err != nil {
		commoncli.HandleErrorAndExit(err)
	}
}

// withTraceLog additionally logs to a trace file under the program temp dir when --trace is set.
func withTraceLog(cmd *cobra.Command, _ []string) error {
	if !trace {
		return nil
	}
	logPath, err := logutil.NewTraceLogPath(programName, time.Now())
	if err != nil {
		return err
	}
	ctx, closer, err := logutil.WrapContextWithFileLogger(cmd.Context(), programName+" ", logPath)
	if err != nil {
		return err
	}
	cmd.SetContext(ctx)
	traceCloser = closer
	_, _ = fmt.Fprintf(os.Stderr, "Writing trace log to %s\n", logPath)
	return nil
}

func init() {
	flags := RootCmd.PersistentFlags()
	flags.StringVarP(&launchOpts.ConfigFile, "config", "c", "", "path to the mirror config file (required)")
	flags.StringVarP(&launchOpts.KubeConfigPath, "kubeconfig", "k", "", "path to the kubeconfig holding the cloud contexts - overrides the config file")
	flags.BoolVar(&trace, "trace", false, "additionally write the log to a trace file")
	commoncli.MapQPSBurstFlags(flags, &qpsBurst)
	commoncli.MapLogFlags(flags)
	_ = RootCmd.MarkPersistentFlagRequired("config")
}

// env is the set of components a command works with. close must be called once the command is done.
type env struct {
	cfg        *configv1alpha1.MirrorConfig
	clients    *client.Provider
	store      mirror.Store
	reconciler *reconciler.Reconciler
}

func loadConfig(cmd *cobra.Command) (*configv1alpha1.MirrorConfig, error) {
	cfg, err := launchOpts.LoadAndValidateMirrorConfig()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("kube-api-qps") {
		cfg.ClientConnection.QPS = qpsBurst.QPS
	}
	if cmd.Flags().Changed("kube-api-burst") {
		cfg.ClientConnection.Burst = qpsBurst.Burst
	}
	return cfg, nil
}

func newEnv(cmd *cobra.Command) (e *env, err error) {
	ctx := cmd.Context()
	e = &env{}
	if e.cfg, err = loadConfig(cmd); err != nil {
		return nil, err
	}
	if e.clients, err = client.NewProviderFromConfig(e.cfg.ClientConnection, e.cfg.CloudContexts); err != nil {
		return nil, err
	}
	var locks mirror.LockService
	if e.cfg.Reconciler.LockBackend == configv1alpha1.LockBackendLease {
		restCfg, err := client.RESTConfig(e.cfg.ClientConnection, "")
		if err != nil {
			return nil, fmt.Errorf("%w: control cluster: %w", mirror.ErrCreateClient, err)
		}
		controlClient, err := kubernetes.NewForConfig(restCfg)
		if err != nil {
			return nil, fmt.Errorf("%w: control cluster: %w", mirror.ErrCreateClient, err)
		}
		locks, err = server.NewLockService(e.cfg.Reconciler, controlClient.CoordinationV1(), server.Identity())
		if err != nil {
			return nil, err
		}
	} else if locks, err = server.NewLockService(e.cfg.Reconciler, nil, ""); err != nil {
		return nil, err
	}
	if e.store, err = server.NewStore(ctx, e.cfg.Store, clock.RealClock{}); err != nil {
		return nil, err
	}
	e.reconciler, err = reconciler.New(reconciler.Args{
		Store:            e.store,
		Clients:          e.clients,
		Locks:            locks,
		Kinds:            e.cfg.Reconciler.Kinds,
		Workers:          e.cfg.Reconciler.Workers,
		BatchParallelism: e.cfg.Reconciler.BatchParallelism,
		ClearStale:       ptr.Deref(e.cfg.Reconciler.ClearStale, true),
	})
	if err != nil {
		_ = e.store.Close()
		return nil, err
	}
	return e, nil
}

// cloudContexts returns the given cloud context, or every configured one if it is empty.
func (e *env) cloudContexts(cloudContext string) ([]string, error) {
	if cloudContext == "" {
		return e.clients.CloudContexts(), nil
	}
	if _, err := e.clients.Facades(cloudContext); err != nil {
		return nil, err
	}
	return []string{cloudContext}, nil
}

func (e *env) close() error {
	return e.store.Close()
}
