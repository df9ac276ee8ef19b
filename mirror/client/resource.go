// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package client implements the remote cluster collaborators of the mirror on top of client-go.
package client

import (
	"context"
	"fmt"

	"github.com/gardener/cloud-mirror/api/mirror"
	"github.com/gardener/cloud-mirror/mirror/kinds"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/dynamic"
)

// DefaultPageSize is the number of objects requested per list call.
const DefaultPageSize int64 = 500

var _ mirror.ResourceClient = (*Dynamic)(nil)

// Dynamic is a mirror.ResourceClient backed by a dynamic client. The API resource of a kind is taken from the kinds catalog.
type Dynamic struct {
	client   dynamic.Interface
	pageSize int64
}

// NewDynamic returns a Dynamic resource client requesting pageSize objects per list call.
func NewDynamic(client dynamic.Interface, pageSize int64) *Dynamic {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Dynamic{client: client, pageSize: pageSize}
}

func (d *Dynamic) resource(kind mirror.Kind, namespace string) (dynamic.ResourceInterface, kinds.Descriptor, error) {
	desc, err := kinds.Get(kind)
	if err != nil {
		return nil, desc, err
	}
	ri := d.client.Resource(desc.GVR)
	if desc.Namespaced() && namespace != "" {
		return ri.Namespace(namespace), desc, nil
	}
	return ri, desc, nil
}

// List follows continue tokens until the listing is complete. Any failing page fails the whole listing, so an
// empty result always means that no matching remote object exists.
func (d *Dynamic) List(ctx context.Context, kind mirror.Kind, params mirror.ListParams) (objs []map[string]any, err error) {
	log := logr.FromContextOrDiscard(ctx)
	defer func() {
		if err != nil {
			objs = nil
			err = fmt.Errorf("%w: %s: %w", mirror.ErrListResources, kind, err)
		}
	}()
	ri, _, err := d.resource(kind, params.Namespace)
	if err != nil {
		return
	}
	opts := metav1.ListOptions{
		LabelSelector: params.LabelSelector,
		FieldSelector: params.FieldSelector,
		Limit:         d.pageSize,
	}
	objs = make([]map[string]any, 0)
	for page := 1; ; page++ {
		var list *unstructured.UnstructuredList
		list, err = ri.List(ctx, opts)
		if err != nil {
			return
		}
		for i := range list.Items {
			objs = append(objs, list.Items[i].Object)
		}
		log.V(5).Info("listed page", "kind", kind, "page", page, "items", len(list.Items))
		if list.GetContinue() == "" {
			return
		}
		opts.Continue = list.GetContinue()
	}
}

// Get returns the object identified by namespace and name.
func (d *Dynamic) Get(ctx context.Context, kind mirror.Kind, namespace, name string) (map[string]any, error) {
	ri, _, err := d.resource(kind, namespace)
	if err != nil {
		return nil, err
	}
	obj, err := ri.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %w", mirror.ErrGetResource, kind, mirror.RecordKey(name, namespace), err)
	}
	return obj.Object, nil
}

// Create creates obj, filling in apiVersion and kind if absent.
func (d *Dynamic) Create(ctx context.Context, kind mirror.Kind, namespace string, obj map[string]any) (map[string]any, error) {
	ri, desc, err := d.resource(kind, namespace)
	if err != nil {
		return nil, err
	}
	u := typed(desc, obj)
	created, err := ri.Create(ctx, u, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %w", mirror.ErrCreateResource, kind, mirror.RecordKey(u.GetName(), namespace), err)
	}
	return created.Object, nil
}

// Update replaces obj, filling in apiVersion and kind if absent.
func (d *Dynamic) Update(ctx context.Context, kind mirror.Kind, namespace string, obj map[string]any) (map[string]any, error) {
	ri, desc, err := d.resource(kind, namespace)
	if err != nil {
		return nil, err
	}
	u := typed(desc, obj)
	updated, err := ri.Update(ctx, u, metav1.UpdateOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %w", mirror.ErrUpdateResource, kind, mirror.RecordKey(u.GetName(), namespace), err)
	}
	return updated.Object, nil
}

// Delete deletes the object identified by namespace and name. Deleting an absent object is not an error.
func (d *Dynamic) Delete(ctx context.Context, kind mirror.Kind, namespace, name string) error {
	ri, _, err := d.resource(kind, namespace)
	if err != nil {
		return err
	}
	if err = ri.Delete(ctx, name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("%w: %s %q: %w", mirror.ErrDeleteResource, kind, mirror.RecordKey(name, namespace), err)
	}
	return nil
}

func typed(desc kinds.Descriptor, obj map[string]any) *unstructured.Unstructured {
	u := &unstructured.Unstructured{Object: obj}
	if u.GetAPIVersion() == "" {
		u.SetAPIVersion(desc.GVR.GroupVersion().String())
	}
	if u.GetKind() == "" {
		u.SetKind(desc.ObjectKind)
	}
	return u
}
