//go:build linux && amd64 && !noxla

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// For now the GPU backend is only built for linux/amd64, where the CUDA PJRT plugin is distributed.

package _default

import _ "github.com/gomlx/webnn/backends/xla"
