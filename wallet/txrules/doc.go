// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package txrules provides functions that help establish whether or not a
transaction abides by the non-consensus rules the wallet applies when it
builds transactions: output dust limits and size-based fees.

Dust and Fee Per KB Calculation

An output is dust when the cost of spending it, at the relay fee rate,
exceeds a third of its value. Fees are charged per 1000 bytes of serialized
transaction size and never round down to zero for a positive rate.
*/
package txrules
