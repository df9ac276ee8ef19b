// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	commonconstants "github.com/gardener/cloud-mirror/api/common/constants"
	commonerrors "github.com/gardener/cloud-mirror/api/common/errors"
	configv1alpha1 "github.com/gardener/cloud-mirror/api/config/v1alpha1"
	"github.com/gardener/cloud-mirror/api/mirror"
	commoncli "github.com/gardener/cloud-mirror/common/cliutil"
	"github.com/gardener/cloud-mirror/mirror/server"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/yaml"
)

const shutdownHeadroom = 5 * time.Second

// LaunchOptions are the command line options of the mirror daemon.
type LaunchOptions struct {
	// ConfigFile is the path to the MirrorConfig file.
	ConfigFile string
	// KubeConfigPath overrides clientConnection.kubeConfigPath of the config file.
	KubeConfigPath string
	// Version prints the version and exits.
	Version bool
}

// ParseLaunchOptions parses the command line arguments into LaunchOptions.
func ParseLaunchOptions(args []string) (*LaunchOptions, error) {
	var opts LaunchOptions
	flagSet := pflag.NewFlagSet(mirror.ProgramName, pflag.ContinueOnError)
	flagSet.StringVar(&opts.ConfigFile, "config", "", "path to the mirror config file")
	flagSet.StringVarP(&opts.KubeConfigPath, clientcmd.RecommendedConfigPathFlag, "k", "", "path to the kubeconfig holding the cloud contexts - overrides the config file")
	flagSet.BoolVar(&opts.Version, "version", false, "print version and exit")
	commoncli.MapLogFlags(flagSet)
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	return &opts, nil
}

func (o *LaunchOptions) validate() error {
	if strings.TrimSpace(o.ConfigFile) == "" {
		return fmt.Errorf("%w: --config", commonerrors.ErrMissingOpt)
	}
	return nil
}

// LoadAndValidateMirrorConfig reads, defaults and validates the MirrorConfig named by the options.
func (o *LaunchOptions) LoadAndValidateMirrorConfig() (cfg *configv1alpha1.MirrorConfig, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("%w: %w", mirror.ErrLoadConfig, err)
		}
	}()
	if err = o.validate(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Clean(o.ConfigFile))
	if err != nil {
		return nil, err
	}
	cfg = &configv1alpha1.MirrorConfig{}
	if err = yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot decode %q: %w", o.ConfigFile, err)
	}
	if o.KubeConfigPath != "" {
		cfg.ClientConnection.KubeConfigPath = o.KubeConfigPath
	}
	configv1alpha1.SetDefaults_MirrorConfig(cfg)
	if err = errors.Join(commoncli.ValidateServerConfig(cfg.Server), configv1alpha1.ValidateMirrorConfig(cfg).ToAggregate()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LaunchApp parses the cli args, loads the config, constructs the mirror server and starts it in the background.
//
// On success, it returns an App holding the server, the App context (cancelled on SIGINT and SIGTERM and carrying a
// logger) and the Cancel func which callers are expected to defer in their main routines.
//
// On error, it reports the error to standard error and returns the exitCode callers are expected to exit with.
func LaunchApp(ctx context.Context) (app mirror.App, exitCode int) {
	opts, err := ParseLaunchOptions(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = commoncli.ExitErrParseOpts
		return
	}
	if opts.Version {
		commoncli.PrintVersion(mirror.ProgramName)
		return
	}
	cfg, err := opts.LoadAndValidateMirrorConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = commoncli.ExitErrParseOpts
		return
	}
	app.Ctx, app.Cancel = commoncli.NewAppContext(ctx, mirror.ProgramName)
	log := logr.FromContextOrDiscard(app.Ctx)
	commoncli.PrintVersion(mirror.ProgramName)
	// the manager gets GracefulShutdownTimeout for its runnables, leave headroom for closing the store
	app.ShutdownTimeout = cfg.Server.GracefulShutdownTimeout.Duration + shutdownHeadroom
	app.Server, err = server.New(app.Ctx, *cfg)
	if err != nil {
		log.Error(err, "failed to initialize mirror server")
		exitCode = commoncli.ExitErrStart
		return
	}
	go func() {
		if err := app.Server.Start(app.Ctx); err != nil {
			log.Error(err, fmt.Sprintf("%s start failed", mirror.ProgramName))
			app.Cancel()
		}
	}()
	return
}

// ShutdownApp gracefully stops the mirror server of app and returns the exit code of the process.
func ShutdownApp(app *mirror.App) (exitCode int) {
	timeout := app.ShutdownTimeout
	if timeout <= 0 {
		timeout = commonconstants.DefaultGracefulShutdownTimeout
	}
	shutDownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	log := logr.FromContextOrDiscard(app.Ctx)
	if err := app.Server.Stop(shutDownCtx); err != nil {
		log.Error(err, fmt.Sprintf("%s shutdown failed", mirror.ProgramName))
		exitCode = commoncli.ExitErrShutdown
		return
	}
	log.Info(fmt.Sprintf("%s shutdown gracefully.", mirror.ProgramName))
	exitCode = commoncli.ExitSuccess
	return
}
