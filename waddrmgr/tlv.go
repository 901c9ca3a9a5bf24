// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/lightningnetwork/lnd/tlv"
)

const (
	typeReceivingCount tlv.Type = 1
	typeReceivingUsed  tlv.Type = 2
	typeChangeCount    tlv.Type = 3
	typeChangeUsed     tlv.Type = 4
)

// packIndexes serializes a list of indexes as consecutive big endian
// uint32 values.
func packIndexes(indexes []uint32) []byte {
	b := make([]byte, 4*len(indexes))
	for i, index := range indexes {
		binary.BigEndian.PutUint32(b[4*i:], index)
	}
	return b
}

// unpackIndexes is the inverse of packIndexes.
func unpackIndexes(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("index list length %d not a multiple "+
			"of 4", len(b))
	}

	if len(b) == 0 {
		return nil, nil
	}

	indexes := make([]uint32, 0, len(b)/4)
	for i := 0; i < len(b); i += 4 {
		indexes = append(indexes, binary.BigEndian.Uint32(b[i:]))
	}
	return indexes, nil
}

// EncodeSnapshot serializes a snapshot as a TLV stream.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	recvUsed := packIndexes(s.Receiving.Used)
	changeUsed := packIndexes(s.Change.Used)

	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(
			typeReceivingCount, &s.Receiving.NumAddresses,
		),
		tlv.MakePrimitiveRecord(typeReceivingUsed, &recvUsed),
		tlv.MakePrimitiveRecord(typeChangeCount, &s.Change.NumAddresses),
		tlv.MakePrimitiveRecord(typeChangeUsed, &changeUsed),
	)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tlvStream.Encode(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeSnapshot parses a snapshot previously produced by EncodeSnapshot.
func DecodeSnapshot(b []byte) (*Snapshot, error) {
	var (
		s                    Snapshot
		recvUsed, changeUsed []byte
	)

	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(
			typeReceivingCount, &s.Receiving.NumAddresses,
		),
		tlv.MakePrimitiveRecord(typeReceivingUsed, &recvUsed),
		tlv.MakePrimitiveRecord(typeChangeCount, &s.Change.NumAddresses),
		tlv.MakePrimitiveRecord(typeChangeUsed, &changeUsed),
	)
	if err != nil {
		return nil, err
	}

	if err := tlvStream.Decode(bytes.NewReader(b)); err != nil {
		return nil, managerError(
			ErrInvalidSnapshot, "unable to decode snapshot", err,
		)
	}

	if s.Receiving.Used, err = unpackIndexes(recvUsed); err != nil {
		return nil, managerError(ErrInvalidSnapshot, "receiving", err)
	}
	if s.Change.Used, err = unpackIndexes(changeUsed); err != nil {
		return nil, managerError(ErrInvalidSnapshot, "change", err)
	}

	return &s, nil
}
