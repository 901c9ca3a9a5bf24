// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/queue"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/shauser/lbry-sdk/wtxmgr"
)

const (
	// notificationBuffer is the size of the channel notifications are
	// fed through before overflowing into the queue.
	notificationBuffer = 20

	// blockInterval is the timestamp spacing of mined blocks.
	blockInterval = 10 * time.Minute
)

// nullOutPoint is spent by the inputs of funding transactions.
var nullOutPoint = wire.OutPoint{Index: wire.MaxPrevOutIndex}

// SimConfig holds the options of a SimChain.
type SimConfig struct {
	// Params are the network parameters used to decode output scripts.
	Params *chaincfg.Params

	// AutoMineInterval enables a miner mining one block per interval
	// whenever the mempool is not empty. Zero disables it.
	AutoMineInterval time.Duration

	// MineTicker overrides the auto-miner's ticker.
	MineTicker ticker.Ticker
}

// simTx is a transaction accepted by the SimChain.
type simTx struct {
	tx     *wire.MsgTx
	hash   chainhash.Hash
	height int32 // -1 while in the mempool
}

// simBlock is a block of the best chain.
type simBlock struct {
	meta wtxmgr.BlockMeta
	txs  []*simTx
}

// SimChain is an in-memory chain for development and tests. It keeps a
// mempool and a best chain, verifies the scripts of every broadcast
// transaction and delivers notifications for transactions touching watched
// addresses. Reorganizations and mempool replacement are driven by
// DisconnectTip and DropTransaction.
type SimChain struct {
	cfg SimConfig

	mu      sync.Mutex
	started bool
	blocks  []*simBlock
	mempool []*simTx
	txs     map[chainhash.Hash]*simTx
	outputs map[wire.OutPoint]*wire.TxOut
	spends  map[wire.OutPoint]chainhash.Hash
	nonce   uint64

	watchedAddrs     map[string]struct{}
	watchedOutPoints map[wire.OutPoint]struct{}

	ntfns *queue.ConcurrentQueue

	wg   sync.WaitGroup
	quit chan struct{}
}

// A compile time check to ensure SimChain satisfies DevInterface.
var _ DevInterface = (*SimChain)(nil)

// NewSimChain returns a chain holding only the genesis block of the params.
func NewSimChain(cfg SimConfig) *SimChain {
	if cfg.Params == nil {
		cfg.Params = &chaincfg.RegressionNetParams
	}

	genesis := &simBlock{
		meta: wtxmgr.BlockMeta{
			Block: wtxmgr.Block{
				Hash:   *cfg.Params.GenesisHash,
				Height: 0,
			},
			Time: cfg.Params.GenesisBlock.Header.Timestamp,
		},
	}

	return &SimChain{
		cfg:              cfg,
		blocks:           []*simBlock{genesis},
		txs:              make(map[chainhash.Hash]*simTx),
		outputs:          make(map[wire.OutPoint]*wire.TxOut),
		spends:           make(map[wire.OutPoint]chainhash.Hash),
		watchedAddrs:     make(map[string]struct{}),
		watchedOutPoints: make(map[wire.OutPoint]struct{}),
		ntfns:            queue.NewConcurrentQueue(notificationBuffer),
		quit:             make(chan struct{}),
	}
}

// Start starts the notification queue and the auto-miner, if enabled.
func (c *SimChain) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return errors.New("chain already started")
	}
	c.started = true
	c.ntfns.Start()

	mineTicker := c.cfg.MineTicker
	if mineTicker == nil && c.cfg.AutoMineInterval > 0 {
		mineTicker = ticker.New(c.cfg.AutoMineInterval)
	}
	if mineTicker != nil {
		mineTicker.Resume()
		c.wg.Add(1)
		go c.autoMine(mineTicker)
	}

	log.Infof("Simulated chain started at height %d",
		c.tip().meta.Height)

	return nil
}

// Stop stops the auto-miner and the notification queue.
func (c *SimChain) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	close(c.quit)
	c.mu.Unlock()

	c.wg.Wait()
	c.ntfns.Stop()
}

// WaitForShutdown blocks until the auto-miner exits.
func (c *SimChain) WaitForShutdown() {
	c.wg.Wait()
}

// autoMine mines a block on every tick while the mempool is not empty.
func (c *SimChain) autoMine(t ticker.Ticker) {
	defer c.wg.Done()
	defer t.Stop()

	for {
		select {
		case <-t.Ticks():
			c.mu.Lock()
			pending := len(c.mempool)
			c.mu.Unlock()
			if pending == 0 {
				continue
			}

			if _, err := c.Generate(1); err != nil {
				log.Errorf("Unable to mine block: %v", err)
			}

		case <-c.quit:
			return
		}
	}
}

// Notifications returns the channel notifications are delivered on.
func (c *SimChain) Notifications() <-chan interface{} {
	return c.ntfns.ChanOut()
}

// notify queues a notification. The caller must hold the mutex so that
// notifications are delivered in the order of the chain events.
func (c *SimChain) notify(n interface{}) {
	select {
	case c.ntfns.ChanIn() <- n:
	case <-c.quit:
	}
}

func (c *SimChain) tip() *simBlock {
	return c.blocks[len(c.blocks)-1]
}

// BestBlock returns the tip of the best chain.
func (c *SimChain) BestBlock() (wtxmgr.BlockMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.tip().meta, nil
}

// NotifyReceived adds the addresses to the watch filter.
func (c *SimChain) NotifyReceived(addrs []btcutil.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return ErrNotStarted
	}
	for _, addr := range addrs {
		c.watchedAddrs[addr.EncodeAddress()] = struct{}{}
	}

	return nil
}

// Rescan adds the addresses to the watch filter and replays the relevant
// transactions of the best chain in block order, then of the mempool.
func (c *SimChain) Rescan(id uint64, addrs []btcutil.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return ErrNotStarted
	}
	for _, addr := range addrs {
		c.watchedAddrs[addr.EncodeAddress()] = struct{}{}
	}

	var replayed int
	for _, block := range c.blocks {
		meta := block.meta
		for _, stx := range block.txs {
			if c.notifyIfRelevant(stx, &meta) {
				replayed++
			}
		}
	}
	for _, stx := range c.mempool {
		if c.notifyIfRelevant(stx, nil) {
			replayed++
		}
	}

	log.Debugf("Rescan %d replayed %d transactions for %d addresses",
		id, replayed, len(addrs))

	c.notify(RescanFinished{ID: id, Block: c.tip().meta})

	return nil
}

// relevant reports whether the transaction spends a watched output or pays
// a watched address. Outputs paying watched addresses are watched from then
// on.
func (c *SimChain) relevant(stx *simTx) bool {
	var found bool
	for _, in := range stx.tx.TxIn {
		if _, ok := c.watchedOutPoints[in.PreviousOutPoint]; ok {
			found = true
		}
	}

	for i, out := range stx.tx.TxOut {
		_, addrs, _, err := txscript.ExtractPkScriptAddrs(
			out.PkScript, c.cfg.Params,
		)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if _, ok := c.watchedAddrs[addr.EncodeAddress()]; !ok {
				continue
			}

			op := wire.OutPoint{Hash: stx.hash, Index: uint32(i)}
			c.watchedOutPoints[op] = struct{}{}
			found = true
		}
	}

	return found
}

// notifyIfRelevant queues a RelevantTx notification when the transaction is
// relevant to the watch filter.
func (c *SimChain) notifyIfRelevant(stx *simTx, block *wtxmgr.BlockMeta) bool {
	if !c.relevant(stx) {
		return false
	}

	received := time.Now()
	if block != nil {
		received = block.Time
	}
	rec, err := wtxmgr.NewTxRecordFromMsgTx(stx.tx, received)
	if err != nil {
		log.Errorf("Unable to create record for %v: %v", stx.hash, err)
		return false
	}

	c.notify(RelevantTx{TxRecord: rec, Block: block})

	return true
}

// SendToAddress funds addr with a transaction spending a synthetic input.
func (c *SimChain) SendToAddress(addr btcutil.Address,
	amount btcutil.Amount) (*chainhash.Hash, error) {

	if amount <= 0 || amount > btcutil.MaxSatoshi {
		return nil, fmt.Errorf("invalid amount %v", amount)
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil, ErrNotStarted
	}

	// The nonce in the signature script keeps funding transactions
	// unique.
	c.nonce++
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], c.nonce)
	sigScript, err := txscript.NewScriptBuilder().
		AddData(nonce[:]).
		Script()
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&nullOutPoint, sigScript, nil))
	tx.AddTxOut(wire.NewTxOut(int64(amount), pkScript))

	stx := &simTx{tx: tx, hash: tx.TxHash(), height: -1}
	c.accept(stx)

	log.Debugf("Funded %v with %v in %v", addr, amount, stx.hash)

	return &stx.hash, nil
}

// SendRawTransaction verifies the transaction against the current chain
// state and adds it to the mempool. Resubmitting an accepted transaction
// is a no-op.
func (c *SimChain) SendRawTransaction(tx *wire.MsgTx) (*chainhash.Hash,
	error) {

	hash := tx.TxHash()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil, ErrNotStarted
	}
	if _, ok := c.txs[hash]; ok {
		return &hash, nil
	}

	if err := c.check(tx); err != nil {
		log.Debugf("Rejected %v: %v", hash, err)
		return nil, err
	}

	c.accept(&simTx{tx: tx, hash: hash, height: -1})

	log.Tracef("Accepted %v", NewLogClosure(func() string {
		return spew.Sdump(tx)
	}))

	return &hash, nil
}

// check validates a broadcast transaction: every input must spend an
// unspent output with a valid signature and the inputs must cover the
// outputs.
func (c *SimChain) check(tx *wire.MsgTx) error {
	if len(tx.TxIn) == 0 || len(tx.TxOut) == 0 {
		return fmt.Errorf("%w: no inputs or outputs", ErrTxRejected)
	}

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	var totalIn int64
	for _, in := range tx.TxIn {
		op := in.PreviousOutPoint
		if op == nullOutPoint {
			return fmt.Errorf("%w: spends null outpoint",
				ErrTxRejected)
		}

		prev, ok := c.outputs[op]
		if !ok {
			return fmt.Errorf("%w: missing input %v", ErrTxRejected,
				op)
		}
		if spender, ok := c.spends[op]; ok {
			return fmt.Errorf("%w: input %v already spent by %v",
				ErrTxRejected, op, spender)
		}

		fetcher.AddPrevOut(op, prev)
		totalIn += prev.Value
	}

	var totalOut int64
	for _, out := range tx.TxOut {
		if out.Value < 0 || out.Value > btcutil.MaxSatoshi {
			return fmt.Errorf("%w: invalid output value %d",
				ErrTxRejected, out.Value)
		}
		totalOut += out.Value
	}
	if totalOut > totalIn {
		return fmt.Errorf("%w: outputs %v exceed inputs %v",
			ErrTxRejected, btcutil.Amount(totalOut),
			btcutil.Amount(totalIn))
	}

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i, in := range tx.TxIn {
		prev := fetcher.FetchPrevOutput(in.PreviousOutPoint)
		vm, err := txscript.NewEngine(
			prev.PkScript, tx, i, txscript.StandardVerifyFlags,
			nil, sigHashes, prev.Value, fetcher,
		)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTxRejected, err)
		}
		if err := vm.Execute(); err != nil {
			return fmt.Errorf("%w: input %d: %v", ErrTxRejected, i,
				err)
		}
	}

	return nil
}

// accept adds a checked transaction to the mempool and notifies if it is
// relevant.
func (c *SimChain) accept(stx *simTx) {
	c.txs[stx.hash] = stx
	c.mempool = append(c.mempool, stx)

	for _, in := range stx.tx.TxIn {
		if in.PreviousOutPoint == nullOutPoint {
			continue
		}
		c.spends[in.PreviousOutPoint] = stx.hash
	}
	for i, out := range stx.tx.TxOut {
		op := wire.OutPoint{Hash: stx.hash, Index: uint32(i)}
		c.outputs[op] = out
	}

	c.notifyIfRelevant(stx, nil)
}

// Generate mines n blocks. The first block contains the whole mempool. The
// RelevantTx notifications of a block precede its BlockConnected
// notification.
func (c *SimChain) Generate(n uint32) ([]*chainhash.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil, ErrNotStarted
	}

	hashes := make([]*chainhash.Hash, 0, n)
	for i := uint32(0); i < n; i++ {
		block := c.mine()
		hash := block.meta.Hash
		hashes = append(hashes, &hash)
	}

	return hashes, nil
}

// mine connects a block holding the mempool.
func (c *SimChain) mine() *simBlock {
	prev := c.tip().meta
	height := prev.Height + 1

	var txids bytes.Buffer
	for _, stx := range c.mempool {
		txids.Write(stx.hash[:])
	}
	header := wire.BlockHeader{
		Version:    1,
		PrevBlock:  prev.Hash,
		MerkleRoot: chainhash.DoubleHashH(txids.Bytes()),
		Timestamp:  prev.Time.Add(blockInterval),
		Bits:       c.cfg.Params.PowLimitBits,
		Nonce:      uint32(height),
	}

	block := &simBlock{
		meta: wtxmgr.BlockMeta{
			Block: wtxmgr.Block{
				Hash:   header.BlockHash(),
				Height: height,
			},
			Time: header.Timestamp,
		},
		txs: c.mempool,
	}
	c.mempool = nil
	c.blocks = append(c.blocks, block)

	meta := block.meta
	for _, stx := range block.txs {
		stx.height = height
		c.notifyIfRelevant(stx, &meta)
	}
	c.notify(BlockConnected(meta))

	log.Debugf("Mined block %v (height %d, %d transactions)", meta.Hash,
		height, len(block.txs))

	return block
}

// DisconnectTip removes the tip block from the best chain and returns its
// transactions to the front of the mempool.
func (c *SimChain) DisconnectTip() (wtxmgr.BlockMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return wtxmgr.BlockMeta{}, ErrNotStarted
	}
	if len(c.blocks) == 1 {
		return wtxmgr.BlockMeta{}, errors.New("cannot disconnect " +
			"genesis block")
	}

	block := c.tip()
	c.blocks = c.blocks[:len(c.blocks)-1]
	for _, stx := range block.txs {
		stx.height = -1
	}
	c.mempool = append(block.txs, c.mempool...)

	c.notify(BlockDisconnected(block.meta))

	log.Infof("Disconnected block %v (height %d)", block.meta.Hash,
		block.meta.Height)

	return block.meta, nil
}

// DropTransaction evicts an unmined transaction and its unmined
// descendants from the mempool. A TxDropped notification is delivered for
// every evicted transaction relevant to the watch filter.
func (c *SimChain) DropTransaction(hash chainhash.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return ErrNotStarted
	}
	stx, ok := c.txs[hash]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownTx, hash)
	}
	if stx.height >= 0 {
		return fmt.Errorf("transaction %v is mined at height %d",
			hash, stx.height)
	}

	c.evict(stx)

	return nil
}

// evict removes the transaction after its spenders.
func (c *SimChain) evict(stx *simTx) {
	for i := range stx.tx.TxOut {
		op := wire.OutPoint{Hash: stx.hash, Index: uint32(i)}
		if spender, ok := c.spends[op]; ok {
			if child, ok := c.txs[spender]; ok {
				c.evict(child)
			}
		}
	}

	relevant := c.relevant(stx)

	for _, in := range stx.tx.TxIn {
		if c.spends[in.PreviousOutPoint] == stx.hash {
			delete(c.spends, in.PreviousOutPoint)
		}
	}
	for i := range stx.tx.TxOut {
		op := wire.OutPoint{Hash: stx.hash, Index: uint32(i)}
		delete(c.outputs, op)
		delete(c.watchedOutPoints, op)
	}
	delete(c.txs, stx.hash)

	for i, m := range c.mempool {
		if m == stx {
			c.mempool = append(c.mempool[:i], c.mempool[i+1:]...)
			break
		}
	}

	if relevant {
		c.notify(TxDropped{Hash: stx.hash})
	}

	log.Debugf("Evicted %v from mempool", stx.hash)
}

// MempoolSize returns the number of unmined transactions.
func (c *SimChain) MempoolSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.mempool)
}

// TxHeight returns the height a transaction is mined at, -1 for mempool
// transactions, or ErrUnknownTx.
func (c *SimChain) TxHeight(hash chainhash.Hash) (int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stx, ok := c.txs[hash]
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrUnknownTx, hash)
	}

	return stx.height, nil
}
