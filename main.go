// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package main

import "github.com/meridianhq/tenancy-service/cmd"

func main() {
	cmd.Execute()
}
