// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package strview provides zero-copy conversions between []byte and
// string. It backs jsontok's borrowed string-view tokens, which must
// not copy out of the tokenizer's input buffer on the hot path.
package strview

import "unsafe"

// BytesToString casts src to a string without extra memory allocation.
// The string returned by this function shares memory with src: src
// must not be mutated for as long as the returned string is live.
func BytesToString(src []byte) string {
	if len(src) == 0 {
		return ""
	}
	return unsafe.String(&src[0], len(src))
}

// StringToBytes casts src to []byte without extra memory allocation.
// The slice returned by this function shares memory with src and must
// not be mutated: string backing arrays are not supposed to change.
func StringToBytes(src string) []byte {
	if len(src) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(src), len(src))
}
