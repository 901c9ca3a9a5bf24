// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package zero clears seed material from memory once a key ring has been
// derived from it.
package zero

// Bytes sets all bytes in the passed slice to zero.
func Bytes(b []byte) {
	clear(b)
}
