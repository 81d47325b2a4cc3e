// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build darwin || freebsd || netbsd || openbsd

package osinfo

import "golang.org/x/sys/unix"

func release() string {
	s, err := unix.Sysctl("kern.osrelease")
	if err != nil {
		return ""
	}
	return s
}
