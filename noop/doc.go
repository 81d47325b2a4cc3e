// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package noop provides the headless platform backend.
//
// The noop driver implements the full platform.Driver contract without doing
// any GPU work. Handles, budgets and error reporting behave exactly as on a
// hardware backend, and every accepted command is recorded so tests can
// assert on call counts and ordering.
//
// Unlike hardware backends, CreateDriver on a fresh noop Platform never
// fails: the shared context is ignored and the config is used only for its
// handle budgets and error policy. Only the single-shot rule applies.
//
// Importing the package registers it as platform.BackendNoop:
//
//	import _ "github.com/gogpu/platform/noop"
package noop
