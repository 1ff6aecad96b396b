// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wamp

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ValidURI reports whether uri is a usable topic or procedure URI: non-empty,
// free of whitespace and '#', and in Unicode NFC form. Empty '.'-separated
// segments are accepted only when allowEmpty is set (pattern subscriptions).
func ValidURI(uri string, allowEmpty bool) bool {
	if uri == "" || !norm.NFC.IsNormalString(uri) {
		return false
	}
	if strings.IndexFunc(uri, func(r rune) bool { return unicode.IsSpace(r) || r == '#' }) >= 0 {
		return false
	}
	if allowEmpty {
		return true
	}
	for _, seg := range strings.Split(uri, ".") {
		if seg == "" {
			return false
		}
	}
	return true
}
