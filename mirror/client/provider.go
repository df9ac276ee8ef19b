// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"
	"slices"

	commontypes "github.com/gardener/cloud-mirror/api/common/types"
	configv1alpha1 "github.com/gardener/cloud-mirror/api/config/v1alpha1"
	"github.com/gardener/cloud-mirror/api/mirror"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"
)

var _ mirror.ClientProvider = (*Provider)(nil)

// Provider hands out clients for a fixed set of cloud contexts.
type Provider struct {
	names   []string
	facades map[string]commontypes.ClientFacades
}

// NewProvider returns a Provider serving the given client facades keyed by cloud context.
func NewProvider(facades map[string]commontypes.ClientFacades) *Provider {
	names := make([]string, 0, len(facades))
	for name := range facades {
		names = append(names, name)
	}
	slices.Sort(names)
	return &Provider{names: names, facades: facades}
}

// NewProviderFromConfig builds one set of client facades per configured cloud context from the kubeconfig.
func NewProviderFromConfig(conn configv1alpha1.ClientConnectionConfig, cloudContexts []configv1alpha1.CloudContextConfig) (*Provider, error) {
	facades := make(map[string]commontypes.ClientFacades, len(cloudContexts))
	for _, cc := range cloudContexts {
		restCfg, err := RESTConfig(conn, cc.KubeConfigContext)
		if err != nil {
			return nil, fmt.Errorf("%w: cloud context %q: %w", mirror.ErrCreateClient, cc.Name, err)
		}
		f, err := NewClientFacades(restCfg)
		if err != nil {
			return nil, fmt.Errorf("%w: cloud context %q: %w", mirror.ErrCreateClient, cc.Name, err)
		}
		facades[cc.Name] = f
	}
	return NewProvider(facades), nil
}

// RESTConfig loads the rest config of the given kubeconfig context. An empty kubeConfigContext selects the current context.
func RESTConfig(conn configv1alpha1.ClientConnectionConfig, kubeConfigContext string) (*rest.Config, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	rules.ExplicitPath = conn.KubeConfigPath
	overrides := &clientcmd.ConfigOverrides{CurrentContext: kubeConfigContext}
	restCfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, err
	}
	restCfg.QPS = conn.QPS
	restCfg.Burst = conn.Burst
	restCfg.Timeout = conn.Timeout.Duration
	return restCfg, nil
}

// NewClientFacades creates the clients used against one cluster.
func NewClientFacades(restCfg *rest.Config) (facades commontypes.ClientFacades, err error) {
	facades.Client, err = kubernetes.NewForConfig(restCfg)
	if err != nil {
		return
	}
	facades.DynClient, err = dynamic.NewForConfig(restCfg)
	if err != nil {
		return
	}
	facades.MetricsClient, err = metricsclient.NewForConfig(restCfg)
	return
}

// CloudContexts returns the sorted names of all known cloud contexts.
func (p *Provider) CloudContexts() []string {
	return slices.Clone(p.names)
}

// Facades returns the raw client facades of the given cloud context.
func (p *Provider) Facades(cloudContext string) (commontypes.ClientFacades, error) {
	f, ok := p.facades[cloudContext]
	if !ok {
		return f, fmt.Errorf("%w: %q", mirror.ErrUnknownCloudContext, cloudContext)
	}
	return f, nil
}

// ResourceClient returns a dynamic ResourceClient for the given cloud context.
func (p *Provider) ResourceClient(cloudContext string) (mirror.ResourceClient, error) {
	f, err := p.Facades(cloudContext)
	if err != nil {
		return nil, err
	}
	return NewDynamic(f.DynClient, DefaultPageSize), nil
}

// MetricsClient returns a MetricsClient for the given cloud context.
func (p *Provider) MetricsClient(cloudContext string) (mirror.MetricsClient, error) {
	f, err := p.Facades(cloudContext)
	if err != nil {
		return nil, err
	}
	return NewMetrics(f.MetricsClient), nil
}
