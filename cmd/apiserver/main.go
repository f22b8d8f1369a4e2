/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package main

import (
	"fmt"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/server"
)

func main() {
	s, err := server.NewServer()
	if err != nil {
		fmt.Println("failed to new api-server, err: ", err.Error())
		return
	}
	s.Start()
}
