// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"strings"
	"testing"
	"time"

	commonerrors "github.com/gardener/cloud-mirror/api/common/errors"
	commontypes "github.com/gardener/cloud-mirror/api/common/types"
	configv1alpha1 "github.com/gardener/cloud-mirror/api/config/v1alpha1"
	"github.com/gardener/cloud-mirror/api/mirror"
	"github.com/gardener/cloud-mirror/common/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
)

func TestParseLaunchOptions(t *testing.T) {
	tests := map[string]struct {
		want    *LaunchOptions
		args    []string
		wantErr error
	}{
		"version":          {args: []string{"--version"}, want: &LaunchOptions{Version: true}},
		"config file":      {args: []string{"--config=/tmp/cloud-mirror.yaml"}, want: &LaunchOptions{ConfigFile: "/tmp/cloud-mirror.yaml"}},
		"kubeconfig short": {args: []string{"--config", "c.yaml", "-k", "/tmp/kc"}, want: &LaunchOptions{ConfigFile: "c.yaml", KubeConfigPath: "/tmp/kc"}},
		"klog flags":       {args: []string{"--config=c.yaml", "--v=4"}, want: &LaunchOptions{ConfigFile: "c.yaml"}},
		"help":             {args: []string{"--help"}, wantErr: pflag.ErrHelp},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseLaunchOptions(tc.args)
			testutil.AssertError(t, err, tc.wantErr)
			if tc.wantErr != nil {
				return
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("launch options mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadAndValidateMirrorConfig(t *testing.T) {
	tests := map[string]struct {
		opts LaunchOptions
		want *configv1alpha1.MirrorConfig
	}{
		"minimal config": {
			opts: LaunchOptions{ConfigFile: "testdata/minimal-mirror-config.yaml"},
			want: withDefaults(&configv1alpha1.MirrorConfig{
				CloudContexts: []configv1alpha1.CloudContextConfig{{Name: "prod-eu"}},
			}),
		},
		"kubeconfig override": {
			opts: LaunchOptions{ConfigFile: "testdata/minimal-mirror-config.yaml", KubeConfigPath: "/tmp/kc"},
			want: withDefaults(&configv1alpha1.MirrorConfig{
				ClientConnection: configv1alpha1.ClientConnectionConfig{KubeConfigPath: "/tmp/kc"},
				CloudContexts:    []configv1alpha1.CloudContextConfig{{Name: "prod-eu"}},
			}),
		},
		"full config": {
			opts: LaunchOptions{ConfigFile: "testdata/full-mirror-config.yaml"},
			want: withDefaults(&configv1alpha1.MirrorConfig{
				Server: commontypes.ServerConfig{
					HealthProbeBindAddress:  ":9081",
					MetricsBindAddress:      ":9080",
					GracefulShutdownTimeout: metav1.Duration{Duration: 10 * time.Second},
				},
				ClientConnection: configv1alpha1.ClientConnectionConfig{
					KubeConfigPath: "/etc/cloud-mirror/kubeconfig",
					QPS:            50,
					Burst:          60,
					Timeout:        metav1.Duration{Duration: 30 * time.Second},
				},
				LeaderElection: configv1alpha1.LeaderElectionConfig{
					Enabled:           true,
					ResourceName:      "mirror-leader",
					ResourceNamespace: "mirror-system",
				},
				CloudContexts: []configv1alpha1.CloudContextConfig{
					{Name: "prod-eu", KubeConfigContext: "garden-prod-eu"},
					{Name: "prod-us"},
				},
				Reconciler: configv1alpha1.ReconcilerConfig{
					Interval:         metav1.Duration{Duration: 10 * time.Minute},
					Workers:          2,
					BatchParallelism: 16,
					ClearStale:       ptr.To(false),
					Kinds:            []mirror.Kind{mirror.KindPod, mirror.KindNode, mirror.KindResourceQuota},
					LockBackend:      configv1alpha1.LockBackendLease,
					LockNamespace:    "mirror-system",
				},
				Store: configv1alpha1.StoreConfig{
					Backend: configv1alpha1.StoreBackendBadger,
					Path:    "/var/lib/cloud-mirror",
				},
				Scheduler: configv1alpha1.SchedulerConfig{
					Enabled:      true,
					Interval:     metav1.Duration{Duration: 30 * time.Second},
					ProjectsFile: "/etc/cloud-mirror/projects.yaml",
					TimeZone:     "Europe/Berlin",
				},
			}),
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := tc.opts.LoadAndValidateMirrorConfig()
			if err != nil {
				t.Fatalf("LoadAndValidateMirrorConfig: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("mirror config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadAndValidateMirrorConfigFailures(t *testing.T) {
	tests := map[string]struct {
		opts         LaunchOptions
		wantErr      error
		wantMessages []string
	}{
		"missing config option": {
			opts:    LaunchOptions{},
			wantErr: commonerrors.ErrMissingOpt,
		},
		"missing file": {
			opts:         LaunchOptions{ConfigFile: "testdata/absent.yaml"},
			wantMessages: []string{"absent.yaml"},
		},
		"unknown field": {
			opts:         LaunchOptions{ConfigFile: "testdata/unknown-field-mirror-config.yaml"},
			wantMessages: []string{"worker"},
		},
		"invalid values": {
			opts: LaunchOptions{ConfigFile: "testdata/invalid-mirror-config.yaml"},
			wantMessages: []string{
				"cloudContexts[1].name",
				"reconciler.workers",
				"store.path",
				"scheduler.projectsFile",
			},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := tc.opts.LoadAndValidateMirrorConfig()
			if !errors.Is(err, mirror.ErrLoadConfig) {
				t.Fatalf("error %v does not wrap %v", err, mirror.ErrLoadConfig)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("error %v does not wrap %v", err, tc.wantErr)
			}
			for _, msg := range tc.wantMessages {
				if !strings.Contains(err.Error(), msg) {
					t.Errorf("error %q does not mention %q", err, msg)
				}
			}
		})
	}
}

func withDefaults(cfg *configv1alpha1.MirrorConfig) *configv1alpha1.MirrorConfig {
	configv1alpha1.SetDefaults_MirrorConfig(cfg)
	return cfg
}
