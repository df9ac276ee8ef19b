// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package timescheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/gardener/cloud-mirror/api/mirror"

	"sigs.k8s.io/yaml"
)

// ProjectsFile is the document read by FileProjectStore.
type ProjectsFile struct {
	// Targets are the namespace level schedules.
	Targets []mirror.ScheduleTarget `json:"targets"`
}

var _ mirror.ProjectStore = (*FileProjectStore)(nil)

// FileProjectStore reads schedule targets from a YAML file on every call, so edits take effect on the next run.
type FileProjectStore struct {
	path string
}

// NewFileProjectStore returns a FileProjectStore reading the given file.
func NewFileProjectStore(path string) *FileProjectStore {
	return &FileProjectStore{path: path}
}

// ListScheduleTargets parses and defaults the targets of the file. A target without a Changed time is considered
// changed when the file was last modified.
func (s *FileProjectStore) ListScheduleTargets(_ context.Context) (targets []mirror.ScheduleTarget, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("%w: %q: %w", mirror.ErrLoadProjects, s.path, err)
		}
	}()
	info, err := os.Stat(s.path)
	if err != nil {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var file ProjectsFile
	if err = yaml.UnmarshalStrict(data, &file); err != nil {
		return
	}
	var errs []error
	for i := range file.Targets {
		t := &file.Targets[i]
		if t.Namespace == "" {
			errs = append(errs, fmt.Errorf("target %d: namespace must not be empty", i))
			continue
		}
		if t.Changed.IsZero() {
			t.Changed = info.ModTime().UTC()
		}
		DefaultTarget(t)
	}
	if err = errors.Join(errs...); err != nil {
		return
	}
	return file.Targets, nil
}

// DefaultTarget fills in the optional fields of t.
func DefaultTarget(t *mirror.ScheduleTarget) {
	if t.Project == "" {
		t.Project = t.Namespace
	}
	if t.QuotaName == "" {
		t.QuotaName = t.Namespace
	}
}

var _ mirror.ProjectStore = StaticProjectStore(nil)

// StaticProjectStore serves a fixed list of targets.
type StaticProjectStore []mirror.ScheduleTarget

// ListScheduleTargets returns defaulted copies of the targets.
func (s StaticProjectStore) ListScheduleTargets(context.Context) ([]mirror.ScheduleTarget, error) {
	targets := slices.Clone([]mirror.ScheduleTarget(s))
	for i := range targets {
		targets[i].CloudContexts = slices.Clone(targets[i].CloudContexts)
		DefaultTarget(&targets[i])
	}
	return targets, nil
}
