// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package osinfo reports the host OS release for Platform.OSVersion.
package osinfo

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

var cached = sync.OnceValue(release)

// Release returns the host OS release string, e.g. "6.8.0-45-generic" on
// Linux or "11.0.22631" on Windows. It is empty when unknown.
func Release() string { return cached() }

// Version returns Parse(Release()). The value is computed once per process.
func Version() int { return Parse(Release()) }

// windows11Build is the first Windows 11 build. Windows 11 still reports
// itself as 10.0 through RtlGetVersion.
const windows11Build = 22000

// windowsRelease formats a Windows version as "major.minor.build", naming
// Windows 11 builds 11.0.
func windowsRelease(major, minor, build uint32) string {
	if major == 10 && minor == 0 && build >= windows11Build {
		major = 11
	}
	return fmt.Sprintf("%d.%d.%d", major, minor, build)
}

// Parse encodes the leading "major.minor.patch" of a release string as
// major*10000 + minor*100 + patch. Minor and patch saturate at 99, so
// Windows builds and Linux patch levels above 99 are not distinguished;
// missing components count as zero. It returns 0 when no major number is
// present.
func Parse(release string) int {
	var parts [3]int
	rest := release
	for i := range parts {
		j := 0
		for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
			j++
		}
		if j == 0 {
			break
		}
		n, err := strconv.Atoi(rest[:j])
		if err != nil {
			break
		}
		parts[i] = n
		rest = rest[j:]
		if !strings.HasPrefix(rest, ".") {
			break
		}
		rest = rest[1:]
	}
	return parts[0]*10000 + min(parts[1], 99)*100 + min(parts[2], 99)
}
