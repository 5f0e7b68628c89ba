// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"fmt"
	"path/filepath"
	"strings"
)

// frameName derives the on-disk filename for frame index i of a
// capture with the given base name: <base>_NNNNNN.dng, 6-digit
// zero-padded, zero-based — matching the original mounter's
// frameName helper.
func frameName(base string, i int) string {
	return fmt.Sprintf("%s_%06d.dng", base, i)
}

// wavName derives the on-disk filename for a capture's audio track.
func wavName(base string) string {
	return base + ".wav"
}

// stemOf returns the base name of a .mcraw path: the filename with
// its extension removed, used as both the capture's directory name
// (in the multi-capture layout) and the frame/wav filename prefix.
func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
