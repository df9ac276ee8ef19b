// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package ioutil

import (
	"io"
	"os"
)

// CloseQuietly safely closes an io.Closer, ignoring and suppressing any error during the close operation.
func CloseQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// GetTempDir gets the temp directory for trace logs, generated files, etc preferring `/tmp` if present.
func GetTempDir() string {
	if slashTmpDirExists {
		return "/tmp"
	}
	return os.TempDir()
}

func init() {
	info, err := os.Stat("/tmp")
	slashTmpDirExists = (err == nil) && info.IsDir()
}

var slashTmpDirExists bool
