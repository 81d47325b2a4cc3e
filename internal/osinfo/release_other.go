// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !windows

package osinfo

func release() string { return "" }
