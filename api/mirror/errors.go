// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"errors"
	"fmt"

	commonerrors "github.com/gardener/cloud-mirror/api/common/errors"
)

var (
	// ErrInitFailed is a sentinel error indicating that the mirror program failed to initialize.
	ErrInitFailed = fmt.Errorf(commonerrors.FmtInitFailed, ProgramName)
	// ErrStartFailed is a sentinel error indicating that the mirror service failed to start.
	ErrStartFailed = fmt.Errorf(commonerrors.FmtStartFailed, ProgramName)
	// ErrLoadConfig is a sentinel error indicating that the mirror configuration could not be loaded.
	ErrLoadConfig = errors.New("cannot load mirror config")
	// ErrUnknownKind is a sentinel error indicating that a resource kind is not supported.
	ErrUnknownKind = errors.New("unknown resource kind")
	// ErrUnknownCloudContext is a sentinel error indicating that a cloud context is not configured.
	ErrUnknownCloudContext = errors.New("unknown cloud context")
	// ErrCreateClient is a sentinel error indicating that a cluster client could not be created.
	ErrCreateClient = errors.New("cannot create cluster client")
	// ErrListResources is a sentinel error indicating that listing remote resources failed.
	ErrListResources = errors.New("cannot list resources")
	// ErrGetResource is a sentinel error indicating that fetching a remote resource failed.
	ErrGetResource = errors.New("cannot get resource")
	// ErrCreateResource is a sentinel error indicating that creating a remote resource failed.
	ErrCreateResource = errors.New("cannot create resource")
	// ErrUpdateResource is a sentinel error indicating that updating a remote resource failed.
	ErrUpdateResource = errors.New("cannot update resource")
	// ErrDeleteResource is a sentinel error indicating that deleting a remote resource failed.
	ErrDeleteResource = errors.New("cannot delete resource")
	// ErrMetricsUnavailable is a sentinel error indicating that the metrics API could not be queried.
	ErrMetricsUnavailable = errors.New("metrics unavailable")
	// ErrMapRecord is a sentinel error indicating that a remote object could not be mapped into a record.
	ErrMapRecord = errors.New("cannot map record")
	// ErrLoadRecord is a sentinel error indicating that a record could not be loaded from the store.
	ErrLoadRecord = errors.New("cannot load record")
	// ErrSaveRecord is a sentinel error indicating that a record could not be saved to the store.
	ErrSaveRecord = errors.New("cannot save record")
	// ErrDeleteRecords is a sentinel error indicating that records could not be deleted from the store.
	ErrDeleteRecords = errors.New("cannot delete records")
	// ErrLockHeld is a sentinel error indicating that a reconciliation pass was skipped because its lock is held elsewhere.
	ErrLockHeld = errors.New("reconciliation lock held elsewhere")
	// ErrInvalidScheduleTime is a sentinel error indicating that a schedule time is not of the form HH:MM.
	ErrInvalidScheduleTime = errors.New("invalid schedule time")
	// ErrLoadProjects is a sentinel error indicating that the project configuration could not be loaded.
	ErrLoadProjects = errors.New("cannot load projects")
	// ErrScheduleQuota is a sentinel error indicating that a scheduled quota could not be applied.
	ErrScheduleQuota = errors.New("cannot apply scheduled quota")
)
