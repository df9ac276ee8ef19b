// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/gardener/cloud-mirror/tools/cmd/mirrorctl/cmd"
)

func main() {
	cmd.Execute()
}
