/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package main

import (
	"fmt"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/daemon"
)

func main() {
	d, err := daemon.NewScannerDaemon()
	if err != nil {
		fmt.Println("failed to new vulnerability scanner, err: ", err.Error())
		return
	}
	d.Start()
}
