// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/shauser/lbry-sdk/waddrmgr"
	"github.com/shauser/lbry-sdk/wtxmgr"

	// Register the bbolt backed walletdb driver.
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
)

const (
	// DBDriver is the walletdb driver snapshots are stored with.
	DBDriver = "bdb"

	// DefaultDBTimeout is how long opening a database waits for the
	// file lock.
	DefaultDBTimeout = 10 * time.Second
)

var (
	// ledgerBucketKey is the top level bucket holding the snapshot.
	ledgerBucketKey = []byte("ledger")

	accountsBucketKey = []byte("accounts")
	txsBucketKey      = []byte("txs")
	creditsBucketKey  = []byte("credits")
)

// ErrNoSnapshot is returned by LoadSnapshot when the database holds no
// snapshot.
var ErrNoSnapshot = errors.New("no ledger snapshot stored")

// OpenDB opens the snapshot database at path, creating it if it does not
// exist.
func OpenDB(path string, create bool) (walletdb.DB, error) {
	if create {
		return walletdb.Create(
			DBDriver, path, true, DefaultDBTimeout, false,
		)
	}

	return walletdb.Open(DBDriver, path, true, DefaultDBTimeout, false)
}

// seqKey returns the big endian key of a sequence number so that a cursor
// walks the records in discovery order.
func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}

// SaveSnapshot replaces the snapshot stored in db.
func SaveSnapshot(db walletdb.DB, s *Snapshot) error {
	return walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		err := tx.DeleteTopLevelBucket(ledgerBucketKey)
		if err != nil && !errors.Is(err, walletdb.ErrBucketNotFound) {
			return err
		}

		root, err := tx.CreateTopLevelBucket(ledgerBucketKey)
		if err != nil {
			return err
		}

		accounts, err := root.CreateBucketIfNotExists(accountsBucketKey)
		if err != nil {
			return err
		}
		for name, acct := range s.Accounts {
			v, err := waddrmgr.EncodeSnapshot(&acct)
			if err != nil {
				return fmt.Errorf("account %q: %w", name, err)
			}
			if err := accounts.Put([]byte(name), v); err != nil {
				return err
			}
		}

		if s.Store == nil {
			return nil
		}

		txs, err := root.CreateBucketIfNotExists(txsBucketKey)
		if err != nil {
			return err
		}
		for i := range s.Store.Txs {
			t := &s.Store.Txs[i]
			v, err := wtxmgr.EncodeTx(t)
			if err != nil {
				return fmt.Errorf("transaction %v: %w",
					t.Record.Hash, err)
			}
			if err := txs.Put(seqKey(t.Sequence), v); err != nil {
				return err
			}
		}

		credits, err := root.CreateBucketIfNotExists(creditsBucketKey)
		if err != nil {
			return err
		}
		for i := range s.Store.Credits {
			c := &s.Store.Credits[i]
			v, err := wtxmgr.EncodeCredit(c)
			if err != nil {
				return fmt.Errorf("credit %v: %w", c.OutPoint, err)
			}
			if err := credits.Put(seqKey(c.Sequence), v); err != nil {
				return err
			}
		}

		log.Debugf("Saved snapshot with %d %s and %d %s",
			len(s.Store.Txs), pickNoun(len(s.Store.Txs),
				"transaction", "transactions"),
			len(s.Store.Credits), pickNoun(len(s.Store.Credits),
				"credit", "credits"))

		return nil
	})
}

// LoadSnapshot reads the snapshot stored in db. It returns ErrNoSnapshot if
// none was saved.
func LoadSnapshot(db walletdb.DB) (*Snapshot, error) {
	s := &Snapshot{
		Accounts: make(map[string]waddrmgr.Snapshot),
		Store:    &wtxmgr.Snapshot{},
	}

	err := walletdb.View(db, func(tx walletdb.ReadTx) error {
		root := tx.ReadBucket(ledgerBucketKey)
		if root == nil {
			return ErrNoSnapshot
		}

		if accounts := root.NestedReadBucket(accountsBucketKey); accounts != nil {
			err := accounts.ForEach(func(k, v []byte) error {
				acct, err := waddrmgr.DecodeSnapshot(v)
				if err != nil {
					return fmt.Errorf("account %q: %w", k, err)
				}
				s.Accounts[string(k)] = *acct
				return nil
			})
			if err != nil {
				return err
			}
		}

		if txs := root.NestedReadBucket(txsBucketKey); txs != nil {
			err := txs.ForEach(func(_, v []byte) error {
				t, err := wtxmgr.DecodeTx(v)
				if err != nil {
					return err
				}
				s.Store.Txs = append(s.Store.Txs, *t)
				return nil
			})
			if err != nil {
				return err
			}
		}

		if credits := root.NestedReadBucket(creditsBucketKey); credits != nil {
			err := credits.ForEach(func(_, v []byte) error {
				c, err := wtxmgr.DecodeCredit(v)
				if err != nil {
					return err
				}
				s.Store.Credits = append(s.Store.Credits, *c)
				return nil
			})
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}
