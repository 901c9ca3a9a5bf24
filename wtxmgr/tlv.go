// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"bytes"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/shauser/lbry-sdk/waddrmgr"
)

const (
	typeTxRaw         tlv.Type = 1
	typeTxReceived    tlv.Type = 3
	typeTxSequence    tlv.Type = 5
	typeTxBlockHash   tlv.Type = 7
	typeTxBlockHeight tlv.Type = 9
	typeTxBlockTime   tlv.Type = 11
)

const (
	typeCreditHash     tlv.Type = 1
	typeCreditIndex    tlv.Type = 3
	typeCreditAccount  tlv.Type = 5
	typeCreditBranch   tlv.Type = 7
	typeCreditKeyIndex tlv.Type = 9
	typeCreditAmount   tlv.Type = 11
	typeCreditPkScript tlv.Type = 13
	typeCreditChange   tlv.Type = 15
	typeCreditSequence tlv.Type = 17
	typeCreditSpentBy  tlv.Type = 19
)

// encodeStream serializes the records as a TLV stream.
func encodeStream(records ...tlv.Record) ([]byte, error) {
	tlvStream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tlvStream.Encode(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// decodeStream parses b into the records and returns the set of types that
// were present.
func decodeStream(b []byte, records ...tlv.Record) (tlv.TypeMap, error) {
	tlvStream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}

	parsed, err := tlvStream.DecodeWithParsedTypes(bytes.NewReader(b))
	if err != nil {
		return nil, txStoreError(
			ErrInvalidSnapshot, "unable to decode record", err,
		)
	}

	return parsed, nil
}

// EncodeTx serializes a transaction snapshot as a TLV stream.
func EncodeTx(tx *TxSnapshot) ([]byte, error) {
	raw := tx.Record.SerializedTx
	if raw == nil {
		rec, err := NewTxRecordFromMsgTx(&tx.Record.MsgTx, time.Time{})
		if err != nil {
			return nil, err
		}
		raw = rec.SerializedTx
	}
	received := uint64(tx.Record.Received.UnixNano())
	seq := tx.Sequence

	records := []tlv.Record{
		tlv.MakePrimitiveRecord(typeTxRaw, &raw),
		tlv.MakePrimitiveRecord(typeTxReceived, &received),
		tlv.MakePrimitiveRecord(typeTxSequence, &seq),
	}

	var (
		blockHash [32]byte
		height    uint32
		blockTime uint64
	)
	tx.Block.WhenSome(func(b BlockMeta) {
		blockHash = b.Hash
		height = uint32(b.Height)
		blockTime = uint64(b.Time.Unix())
		records = append(records,
			tlv.MakePrimitiveRecord(typeTxBlockHash, &blockHash),
			tlv.MakePrimitiveRecord(typeTxBlockHeight, &height),
			tlv.MakePrimitiveRecord(typeTxBlockTime, &blockTime),
		)
	})

	return encodeStream(records...)
}

// DecodeTx parses a transaction snapshot produced by EncodeTx.
func DecodeTx(b []byte) (*TxSnapshot, error) {
	var (
		raw       []byte
		received  uint64
		seq       uint64
		blockHash [32]byte
		height    uint32
		blockTime uint64
	)

	parsed, err := decodeStream(b,
		tlv.MakePrimitiveRecord(typeTxRaw, &raw),
		tlv.MakePrimitiveRecord(typeTxReceived, &received),
		tlv.MakePrimitiveRecord(typeTxSequence, &seq),
		tlv.MakePrimitiveRecord(typeTxBlockHash, &blockHash),
		tlv.MakePrimitiveRecord(typeTxBlockHeight, &height),
		tlv.MakePrimitiveRecord(typeTxBlockTime, &blockTime),
	)
	if err != nil {
		return nil, err
	}

	rec, err := NewTxRecord(raw, time.Unix(0, int64(received)))
	if err != nil {
		return nil, err
	}

	snap := &TxSnapshot{
		Record:   rec,
		Block:    fn.None[BlockMeta](),
		Sequence: seq,
	}
	if _, ok := parsed[typeTxBlockHash]; ok {
		snap.Block = fn.Some(BlockMeta{
			Block: Block{
				Hash:   chainhash.Hash(blockHash),
				Height: int32(height),
			},
			Time: time.Unix(int64(blockTime), 0),
		})
	}

	return snap, nil
}

// EncodeCredit serializes the persistent fields of a credit as a TLV
// stream.
func EncodeCredit(c *Credit) ([]byte, error) {
	var (
		hash     [32]byte = c.OutPoint.Hash
		index             = c.OutPoint.Index
		account           = []byte(c.Account)
		branch            = uint32(c.Branch)
		keyIndex          = c.Index
		amount            = uint64(c.Amount)
		pkScript          = c.PkScript
		change   uint8
		seq      = c.Sequence
		spentBy  [32]byte
	)
	if c.Change {
		change = 1
	}

	records := []tlv.Record{
		tlv.MakePrimitiveRecord(typeCreditHash, &hash),
		tlv.MakePrimitiveRecord(typeCreditIndex, &index),
		tlv.MakePrimitiveRecord(typeCreditAccount, &account),
		tlv.MakePrimitiveRecord(typeCreditBranch, &branch),
		tlv.MakePrimitiveRecord(typeCreditKeyIndex, &keyIndex),
		tlv.MakePrimitiveRecord(typeCreditAmount, &amount),
		tlv.MakePrimitiveRecord(typeCreditPkScript, &pkScript),
		tlv.MakePrimitiveRecord(typeCreditChange, &change),
		tlv.MakePrimitiveRecord(typeCreditSequence, &seq),
	}
	c.SpentBy.WhenSome(func(h chainhash.Hash) {
		spentBy = h
		records = append(records, tlv.MakePrimitiveRecord(
			typeCreditSpentBy, &spentBy,
		))
	})

	return encodeStream(records...)
}

// DecodeCredit parses a credit produced by EncodeCredit.
func DecodeCredit(b []byte) (*Credit, error) {
	var (
		hash     [32]byte
		index    uint32
		account  []byte
		branch   uint32
		keyIndex uint32
		amount   uint64
		pkScript []byte
		change   uint8
		seq      uint64
		spentBy  [32]byte
	)

	parsed, err := decodeStream(b,
		tlv.MakePrimitiveRecord(typeCreditHash, &hash),
		tlv.MakePrimitiveRecord(typeCreditIndex, &index),
		tlv.MakePrimitiveRecord(typeCreditAccount, &account),
		tlv.MakePrimitiveRecord(typeCreditBranch, &branch),
		tlv.MakePrimitiveRecord(typeCreditKeyIndex, &keyIndex),
		tlv.MakePrimitiveRecord(typeCreditAmount, &amount),
		tlv.MakePrimitiveRecord(typeCreditPkScript, &pkScript),
		tlv.MakePrimitiveRecord(typeCreditChange, &change),
		tlv.MakePrimitiveRecord(typeCreditSequence, &seq),
		tlv.MakePrimitiveRecord(typeCreditSpentBy, &spentBy),
	)
	if err != nil {
		return nil, err
	}

	c := &Credit{
		Account:  string(account),
		Branch:   waddrmgr.Branch(branch),
		Index:    keyIndex,
		Amount:   btcutil.Amount(amount),
		PkScript: pkScript,
		Change:   change == 1,
		Sequence: seq,
		SpentBy:  fn.None[chainhash.Hash](),
	}
	c.OutPoint.Hash = hash
	c.OutPoint.Index = index
	if _, ok := parsed[typeCreditSpentBy]; ok {
		c.SpentBy = fn.Some(chainhash.Hash(spentBy))
	}

	return c, nil
}
