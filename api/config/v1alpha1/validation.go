// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// ValidateMirrorConfig validates a defaulted MirrorConfig.
func ValidateMirrorConfig(cfg *MirrorConfig) field.ErrorList {
	allErrs := field.ErrorList{}
	fldPath := field.NewPath("cloudContexts")
	if len(cfg.CloudContexts) == 0 {
		allErrs = append(allErrs, field.Required(fldPath, "at least one cloud context must be specified"))
	}
	seen := sets.New[string]()
	for i, cc := range cfg.CloudContexts {
		idxPath := fldPath.Index(i)
		if strings.TrimSpace(cc.Name) == "" {
			allErrs = append(allErrs, field.Required(idxPath.Child("name"), "name must not be empty"))
			continue
		}
		if seen.Has(cc.Name) {
			allErrs = append(allErrs, field.Duplicate(idxPath.Child("name"), cc.Name))
		}
		seen.Insert(cc.Name)
	}
	allErrs = append(allErrs, validateReconcilerConfig(&cfg.Reconciler, field.NewPath("reconciler"))...)
	allErrs = append(allErrs, validateStoreConfig(&cfg.Store, field.NewPath("store"))...)
	if cfg.Scheduler.Enabled && strings.TrimSpace(cfg.Scheduler.ProjectsFile) == "" {
		allErrs = append(allErrs, field.Required(field.NewPath("scheduler", "projectsFile"), "projectsFile is required when the scheduler is enabled"))
	}
	if _, err := time.LoadLocation(cfg.Scheduler.TimeZone); err != nil {
		allErrs = append(allErrs, field.Invalid(field.NewPath("scheduler", "timeZone"), cfg.Scheduler.TimeZone, err.Error()))
	}
	return allErrs
}

func validateReconcilerConfig(rc *ReconcilerConfig, fldPath *field.Path) field.ErrorList {
	allErrs := field.ErrorList{}
	if rc.Workers < 1 {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("workers"), rc.Workers, "workers must be positive"))
	}
	if rc.BatchParallelism < 1 {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("batchParallelism"), rc.BatchParallelism, "batchParallelism must be positive"))
	}
	switch rc.LockBackend {
	case LockBackendLocal, LockBackendLease:
	default:
		allErrs = append(allErrs, field.NotSupported(fldPath.Child("lockBackend"), rc.LockBackend, []LockBackend{LockBackendLocal, LockBackendLease}))
	}
	return allErrs
}

func validateStoreConfig(sc *StoreConfig, fldPath *field.Path) field.ErrorList {
	allErrs := field.ErrorList{}
	switch sc.Backend {
	case StoreBackendMemory:
	case StoreBackendBadger:
		if strings.TrimSpace(sc.Path) == "" {
			allErrs = append(allErrs, field.Required(fldPath.Child("path"), "path is required for the badger backend"))
		}
	default:
		allErrs = append(allErrs, field.NotSupported(fldPath.Child("backend"), sc.Backend, []StoreBackend{StoreBackendMemory, StoreBackendBadger}))
	}
	return allErrs
}
