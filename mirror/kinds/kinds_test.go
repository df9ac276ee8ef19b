// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package kinds

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gardener/cloud-mirror/api/mirror"
	"github.com/gardener/cloud-mirror/common/testutil"
	"github.com/gardener/cloud-mirror/mirror/mapper"
	"github.com/gardener/cloud-mirror/mirror/store/inmem"

	"github.com/google/go-cmp/cmp"
	testingclock "k8s.io/utils/clock/testing"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestCatalog(t *testing.T) {
	if got := len(All()); got != 28 {
		t.Fatalf("catalog has %d kinds, want 28", got)
	}
	seen := make(map[string]mirror.Kind)
	for _, d := range All() {
		if d.Table.Kind == "" || d.ObjectKind == "" || d.GVR.Resource == "" {
			t.Errorf("incomplete descriptor %+v", d)
		}
		if other, ok := seen[d.GVR.String()]; ok {
			t.Errorf("kinds %q and %q share resource %s", other, d.Kind(), d.GVR)
		}
		seen[d.GVR.String()] = d.Kind()
	}
	var batchKinds []mirror.Kind
	for _, d := range All() {
		if d.BatchMode {
			batchKinds = append(batchKinds, d.Kind())
		}
	}
	want := []mirror.Kind{mirror.KindPod, mirror.KindReplicaSet, mirror.KindEndpoint, mirror.KindEvent}
	if diff := cmp.Diff(want, batchKinds); diff != "" {
		t.Errorf("batch kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestScopes(t *testing.T) {
	clusterScoped := []mirror.Kind{
		mirror.KindNode, mirror.KindNamespace, mirror.KindClusterRole, mirror.KindStorageClass,
		mirror.KindPersistentVolume, mirror.KindAPIService, mirror.KindPriorityClass, mirror.KindClusterRoleBinding,
	}
	for _, d := range All() {
		wantNamespaced := true
		for _, k := range clusterScoped {
			if d.Kind() == k {
				wantNamespaced = false
			}
		}
		if d.Namespaced() != wantNamespaced {
			t.Errorf("%s: namespaced = %t, want %t", d.Kind(), d.Namespaced(), wantNamespaced)
		}
	}
}

func TestSelect(t *testing.T) {
	tests := map[string]struct {
		kinds   []mirror.Kind
		wantLen int
		wantErr error
	}{
		"all":     {kinds: nil, wantLen: 28},
		"subset":  {kinds: []mirror.Kind{mirror.KindPod, mirror.KindNode}, wantLen: 2},
		"unknown": {kinds: []mirror.Kind{"widget"}, wantErr: mirror.ErrUnknownKind},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := Select(tc.kinds)
			testutil.AssertError(t, err, tc.wantErr)
			if len(got) != tc.wantLen {
				t.Errorf("got %d descriptors, want %d", len(got), tc.wantLen)
			}
		})
	}
}

func mapOne(t *testing.T, kind mirror.Kind, raw map[string]any, extra mirror.ExtraData) *mirror.Record {
	t.Helper()
	ctx := context.Background()
	clk := testingclock.NewFakeClock(epoch)
	store := inmem.New(clk)
	d, err := Get(kind)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", kind, err)
	}
	if _, err = mapper.New(store, clk, d.Table).Map(ctx, "ctx1", raw, extra); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	name, namespace := mapper.ObjectMeta(raw, d.Namespaced())
	rec, found, err := store.Load(ctx, kind, "ctx1", name, namespace)
	if err != nil || !found {
		t.Fatalf("Load failed: found=%t err=%v", found, err)
	}
	return rec
}

func TestPodMapping(t *testing.T) {
	raw := map[string]any{
		"metadata": map[string]any{"name": "p1", "namespace": "ns1", "labels": map[string]any{"app": "x"}},
		"spec": map[string]any{"containers": []any{
			map[string]any{"resources": map[string]any{"requests": map[string]any{"cpu": "250m", "memory": "64Mi"}}},
		}},
		"status": map[string]any{"phase": "Running"},
	}
	rec := mapOne(t, mirror.KindPod, raw, mirror.ExtraData{})
	if got := rec.FloatField(FieldCPURequest); got != 0.25 {
		t.Errorf("cpu_request = %v, want 0.25", got)
	}
	if got := rec.IntField(FieldMemoryRequest); got != 67108864 {
		t.Errorf("memory_request = %d, want 67108864", got)
	}
	if got := rec.StringField(FieldStatus); got != "Running" {
		t.Errorf("status = %q, want Running", got)
	}
	if diff := cmp.Diff([]mirror.KeyValue{{ItemKey: "app", ItemValue: "x"}}, rec.Labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
	if rec.FloatField(FieldCPUUsage) != 0 || rec.IntField(FieldMemoryUsage) != 0 {
		t.Errorf("usage must default to zero without metrics")
	}
}

func TestPodFixtureWithUsage(t *testing.T) {
	raw := testutil.MustLoadTestObject(t, "pod-a.yaml")
	extra := mirror.ExtraData{PodMetrics: map[string]mirror.Usage{
		mirror.RecordKey("pod-a", "default"): {CPU: 0.12, Memory: 50 * 1024 * 1024},
	}}
	rec := mapOne(t, mirror.KindPod, raw, extra)
	checks := map[string]struct{ got, want any }{
		"cpu_request":      {rec.FloatField(FieldCPURequest), 0.35},
		"cpu_limit":        {rec.FloatField(FieldCPULimit), 0.5},
		"memory_request":   {rec.IntField(FieldMemoryRequest), int64(96 * 1024 * 1024)},
		"memory_limit":     {rec.IntField(FieldMemoryLimit), int64(128 * 1024 * 1024)},
		"restarts":         {rec.IntField("restarts"), int64(3)},
		"containers":       {rec.IntField("containers"), int64(2)},
		"ready_containers": {rec.IntField("ready_containers"), int64(2)},
		"node_name":        {rec.StringField("node_name"), "node-a"},
		"images":           {rec.StringField("images"), "nginx:1.27,busybox:1.36"},
		"cpu_usage":        {rec.FloatField(FieldCPUUsage), 0.12},
		"memory_usage":     {rec.IntField(FieldMemoryUsage), int64(50 * 1024 * 1024)},
		"created":          {rec.Created, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
	}
	for name, c := range checks {
		if diff := cmp.Diff(c.want, c.got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestNodeFixtureAggregatesPods(t *testing.T) {
	node := testutil.MustLoadTestObject(t, "node-a.yaml")
	pods, err := testutil.LoadTestPods()
	if err != nil {
		t.Fatalf("LoadTestPods failed: %v", err)
	}
	otherNode := map[string]any{
		"metadata": map[string]any{"name": "elsewhere", "namespace": "default"},
		"spec": map[string]any{"nodeName": "node-b", "containers": []any{
			map[string]any{"resources": map[string]any{"requests": map[string]any{"cpu": "1"}}},
		}},
	}
	finished := map[string]any{
		"metadata": map[string]any{"name": "done", "namespace": "default"},
		"spec": map[string]any{"nodeName": "node-a", "containers": []any{
			map[string]any{"resources": map[string]any{"requests": map[string]any{"cpu": "1"}}},
		}},
		"status": map[string]any{"phase": "Succeeded"},
	}
	extra := mirror.ExtraData{
		Pods:        append(pods, otherNode, finished),
		NodeMetrics: map[string]mirror.Usage{"node-a": {CPU: 0.8, Memory: 2 << 30}},
	}
	rec := mapOne(t, mirror.KindNode, node, extra)
	checks := map[string]struct{ got, want any }{
		"pods_allocated":  {rec.IntField("pods_allocated"), int64(1)},
		"cpu_request":     {rec.FloatField(FieldCPURequest), 0.35},
		"cpu_capacity":    {rec.FloatField("cpu_capacity"), 2.0},
		"cpu_allocatable": {rec.FloatField("cpu_allocatable"), 1.92},
		"memory_capacity": {rec.IntField("memory_capacity"), int64(8 << 30)},
		"pods_capacity":   {rec.IntField("pods_capacity"), int64(110)},
		"ready":           {rec.StringField("ready"), "True"},
		"kubelet_version": {rec.StringField("kubelet_version"), "v1.34.1"},
		"cpu_usage":       {rec.FloatField(FieldCPUUsage), 0.8},
		"memory_usage":    {rec.IntField(FieldMemoryUsage), int64(2 << 30)},
		"namespace":       {rec.Namespace, ""},
	}
	for name, c := range checks {
		if diff := cmp.Diff(c.want, c.got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}
	wantAddresses := []mirror.KeyValue{{ItemKey: "Hostname", ItemValue: "node-a"}, {ItemKey: "InternalIP", ItemValue: "192.168.1.10"}}
	if diff := cmp.Diff(wantAddresses, rec.KeyValuesField("addresses")); diff != "" {
		t.Errorf("addresses mismatch (-want +got):\n%s", diff)
	}
}

func TestSecretValuesAreNotMirrored(t *testing.T) {
	raw := map[string]any{
		"metadata": map[string]any{
			"name": "creds", "namespace": "ns1",
			"annotations": map[string]any{
				"kubectl.kubernetes.io/last-applied-configuration": `{"data":{"password":"c2VjcmV0"}}`,
				"owner": "team-a",
			},
		},
		"type": "kubernetes.io/basic-auth",
		"data": map[string]any{"password": "c2VjcmV0", "username": "YWRtaW4="},
	}
	rec := mapOne(t, mirror.KindSecret, raw, mirror.ExtraData{})
	if strings.Contains(rec.Detail, "c2VjcmV0") || strings.Contains(rec.Detail, "YWRtaW4=") {
		t.Errorf("secret data leaked into detail:\n%s", rec.Detail)
	}
	for _, kv := range rec.Annotations {
		if strings.Contains(kv.ItemValue, "c2VjcmV0") {
			t.Errorf("secret data leaked into annotation %q", kv.ItemKey)
		}
	}
	if got := rec.StringField("data_keys"); got != "password,username" {
		t.Errorf("data_keys = %q", got)
	}
	if got := rec.StringField("type"); got != "kubernetes.io/basic-auth" {
		t.Errorf("type = %q", got)
	}
	if raw["data"].(map[string]any)["password"] != "c2VjcmV0" {
		t.Errorf("raw object was modified")
	}
}

func TestCronJobActive(t *testing.T) {
	tests := map[string]struct {
		status     map[string]any
		wantActive int64
		wantJobs   string
	}{
		"no status": {status: nil, wantActive: 0},
		"two active jobs": {
			status: map[string]any{"active": []any{
				map[string]any{"name": "backup-1"},
				map[string]any{"name": "backup-2"},
			}},
			wantActive: 2,
			wantJobs:   "backup-1,backup-2",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			raw := map[string]any{
				"metadata": map[string]any{"name": "backup", "namespace": "ns1"},
				"spec":     map[string]any{"schedule": "0 * * * *"},
			}
			if tc.status != nil {
				raw["status"] = tc.status
			}
			rec := mapOne(t, mirror.KindCronJob, raw, mirror.ExtraData{})
			if got := rec.IntField("active"); got != tc.wantActive {
				t.Errorf("active = %d, want %d", got, tc.wantActive)
			}
			if got := rec.StringField("active_jobs"); got != tc.wantJobs {
				t.Errorf("active_jobs = %q, want %q", got, tc.wantJobs)
			}
			if got := rec.StringField("concurrency_policy"); got != "Allow" {
				t.Errorf("concurrency_policy = %q, want default Allow", got)
			}
		})
	}
}

func TestRBACMapping(t *testing.T) {
	role := map[string]any{
		"metadata": map[string]any{"name": "reader", "namespace": "ns1"},
		"rules": []any{
			map[string]any{"apiGroups": []any{""}, "resources": []any{"pods"}, "verbs": []any{"get", "list"}},
			map[string]any{"apiGroups": []any{"apps"}, "resources": []any{"deployments"}, "verbs": []any{"get"}, "resourceNames": []any{"web"}},
		},
	}
	rec := mapOne(t, mirror.KindRole, role, mirror.ExtraData{})
	want := `get,list on ""/pods` + "\n" + "get on apps/deployments [web]"
	if got := rec.StringField("rules"); got != want {
		t.Errorf("rules = %q, want %q", got, want)
	}
	if got := rec.IntField("rule_count"); got != 2 {
		t.Errorf("rule_count = %d", got)
	}

	binding := map[string]any{
		"metadata": map[string]any{"name": "read-pods"},
		"roleRef":  map[string]any{"kind": "ClusterRole", "name": "view"},
		"subjects": []any{
			map[string]any{"kind": "User", "name": "jane"},
			map[string]any{"kind": "ServiceAccount", "name": "ci", "namespace": "ns1"},
		},
	}
	rec = mapOne(t, mirror.KindClusterRoleBinding, binding, mirror.ExtraData{})
	if got := rec.StringField("role_ref"); got != "ClusterRole/view" {
		t.Errorf("role_ref = %q", got)
	}
	if got := rec.StringField("subjects"); got != "User:jane,ServiceAccount:ns1/ci" {
		t.Errorf("subjects = %q", got)
	}
}

func TestServiceAndEndpoints(t *testing.T) {
	svc := map[string]any{
		"metadata": map[string]any{"name": "web", "namespace": "ns1"},
		"spec": map[string]any{
			"selector": map[string]any{"app": "web"},
			"ports": []any{
				map[string]any{"name": "http", "port": int64(80), "protocol": "TCP", "targetPort": int64(8080)},
			},
		},
	}
	rec := mapOne(t, mirror.KindService, svc, mirror.ExtraData{})
	if got := rec.StringField("ports"); got != "http:80/TCP->8080" {
		t.Errorf("ports = %q", got)
	}
	if got := rec.StringField("type"); got != "ClusterIP" {
		t.Errorf("type = %q, want default ClusterIP", got)
	}

	ep := map[string]any{
		"metadata": map[string]any{"name": "web", "namespace": "ns1"},
		"subsets": []any{map[string]any{
			"addresses":         []any{map[string]any{"ip": "10.0.0.2"}, map[string]any{"ip": "10.0.0.1"}},
			"notReadyAddresses": []any{map[string]any{"ip": "10.0.0.3"}},
			"ports":             []any{map[string]any{"port": int64(8080), "protocol": "TCP"}},
		}},
	}
	rec = mapOne(t, mirror.KindEndpoint, ep, mirror.ExtraData{})
	if got := rec.StringField("addresses"); got != "10.0.0.1,10.0.0.2" {
		t.Errorf("addresses = %q", got)
	}
	if got := rec.IntField("ready_count"); got != 2 {
		t.Errorf("ready_count = %d", got)
	}
	if got := rec.StringField("not_ready_addresses"); got != "10.0.0.3" {
		t.Errorf("not_ready_addresses = %q", got)
	}
}

func TestEveryKindMapsAnEmptyObject(t *testing.T) {
	for _, d := range All() {
		t.Run(string(d.Kind()), func(t *testing.T) {
			raw := map[string]any{"metadata": map[string]any{"name": "x", "namespace": "ns"}}
			rec := mapOne(t, d.Kind(), raw, mirror.ExtraData{})
			if rec.Name != "x" {
				t.Errorf("name = %q", rec.Name)
			}
		})
	}
}

func TestGetUnknownKind(t *testing.T) {
	_, err := Get("widget")
	if !errors.Is(err, mirror.ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}
