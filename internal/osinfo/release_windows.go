// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build windows

package osinfo

import "golang.org/x/sys/windows"

func release() string {
	v := windows.RtlGetVersion()
	if v == nil {
		return ""
	}
	return windowsRelease(v.MajorVersion, v.MinorVersion, v.BuildNumber)
}
