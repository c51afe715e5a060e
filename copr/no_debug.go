// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !periph_panel_copr_debug
// +build !periph_panel_copr_debug

package copr

// logf is disabled when the build tag periph_panel_copr_debug is not specified.
func logf(fmt string, v ...interface{}) {
}
