package rusticdb

// heapPage is the in-memory form of one fixed-size slotted page of a
// HeapFile.  The on-disk format is a header bitmap followed by the tuple
// slots:
//
//	header[headerSize] || slot[0] || slot[1] || ... || zero padding
//
// The header has one bit per slot, bit i at byte i/8 under mask
// 1<<(i%8); 1 means the slot is occupied.  Every slot occupies its full
// tuple size on disk whether occupied or not, and the page is padded
// with zeros to PageSize.
//
// A page carries two distinct locks.  The latch protects the in-memory
// bytes and is held only for the duration of a single read or mutation;
// the transactional page lock lives in the LockManager and spans the
// whole transaction.  Merging the two would self-deadlock the insert
// scan's probe-then-upgrade pattern.

import (
	"bytes"
	"fmt"
	"sync"
)

// HeapPageID identifies one page of one table.  It is stable across the
// process lifetime and usable as a map key.
type HeapPageID struct {
	TableID uint64
	PageNo  int
}

type heapPage struct {
	latch    sync.RWMutex
	pid      HeapPageID
	desc     *TupleDesc
	numSlots int
	header   []byte
	tuples   []*Tuple // nil marks a free slot
	// oldData is the page's before-image: its bytes as of the last
	// commit (or as read from disk).  Aborts restore from it.
	oldData   []byte
	dirty     bool
	dirtiedBy TransactionID
}

// slotsPerPage computes how many tuples of the supplied desc fit on one
// page, accounting for the one header bit each slot costs.  A desc
// larger than the page yields zero slots and an inert page.
func slotsPerPage(desc *TupleDesc) int {
	return (PageSize * 8) / (desc.size()*8 + 1)
}

func headerSizeFor(numSlots int) int {
	return (numSlots + 7) / 8
}

// newHeapPage constructs an empty page for the supplied desc.
func newHeapPage(pid HeapPageID, desc *TupleDesc) *heapPage {
	p, _ := newHeapPageFromBytes(pid, make([]byte, PageSize), desc)
	return p
}

// newHeapPageFromBytes decodes PageSize bytes into a heapPage.  Each
// occupied slot's tuple is decoded and stamped with its record id; the
// decode fails if any occupied slot holds malformed bytes.  The decoded
// bytes become the page's initial before-image.
func newHeapPageFromBytes(pid HeapPageID, data []byte, desc *TupleDesc) (*heapPage, error) {
	if len(data) != PageSize {
		return nil, DBError{MalformedDataError, fmt.Sprintf("page %v: got %d bytes, want %d", pid, len(data), PageSize)}
	}
	numSlots := slotsPerPage(desc)
	headerSize := headerSizeFor(numSlots)

	p := &heapPage{
		pid:      pid,
		desc:     desc.copy(),
		numSlots: numSlots,
		header:   append([]byte(nil), data[:headerSize]...),
		tuples:   make([]*Tuple, numSlots),
		oldData:  append([]byte(nil), data...),
	}

	tupleSize := desc.size()
	for i := 0; i < numSlots; i++ {
		if !getSlot(p.header, i) {
			continue
		}
		start := headerSize + i*tupleSize
		t, err := readTupleFrom(bytes.NewBuffer(data[start:start+tupleSize]), desc)
		if err != nil {
			return nil, err
		}
		t.Rid = RecordID{PID: pid, SlotNo: i}
		p.tuples[i] = t
	}
	return p, nil
}

func getSlot(header []byte, i int) bool {
	idx := i / 8
	if idx >= len(header) {
		return false
	}
	return header[idx]&(1<<(i%8)) != 0
}

func setSlot(header []byte, i int, occupied bool) {
	mask := byte(1 << (i % 8))
	if occupied {
		header[i/8] |= mask
	} else {
		header[i/8] &^= mask
	}
}

func (p *heapPage) getID() HeapPageID {
	return p.pid
}

func (p *heapPage) getNumSlots() int {
	return p.numSlots
}

// toBytes encodes the page into its PageSize on-disk form.  The output
// round-trips bit-exactly through newHeapPageFromBytes.
func (p *heapPage) toBytes() []byte {
	p.latch.RLock()
	defer p.latch.RUnlock()
	return p.encodeLocked()
}

func (p *heapPage) encodeLocked() []byte {
	data := make([]byte, 0, PageSize)
	data = append(data, p.header...)
	tupleSize := p.desc.size()
	zero := make([]byte, tupleSize)
	for i := 0; i < p.numSlots; i++ {
		if getSlot(p.header, i) {
			var buf bytes.Buffer
			p.tuples[i].writeTo(&buf)
			data = append(data, buf.Bytes()...)
		} else {
			data = append(data, zero...)
		}
	}
	data = append(data, make([]byte, PageSize-len(data))...)
	return data
}

// Insert the tuple into the first free slot on the page, stamping its
// record id, or return PageFullError if no slot is free.  The page
// stores its own copy of the tuple.
func (p *heapPage) insertTuple(t *Tuple) (RecordID, error) {
	p.latch.Lock()
	defer p.latch.Unlock()
	for i := 0; i < p.numSlots; i++ {
		if getSlot(p.header, i) {
			continue
		}
		rid := RecordID{PID: p.pid, SlotNo: i}
		p.tuples[i] = &Tuple{
			Desc:   *p.desc.copy(),
			Fields: append([]DBValue(nil), t.Fields...),
			Rid:    rid,
		}
		setSlot(p.header, i, true)
		t.Rid = rid
		return rid, nil
	}
	return RecordID{}, DBError{PageFullError, fmt.Sprintf("page %v has no free slots", p.pid)}
}

// Delete the supplied tuple from the page.  The tuple's record id must
// name this page and an occupied slot.
func (p *heapPage) deleteTuple(t *Tuple) error {
	p.latch.Lock()
	defer p.latch.Unlock()
	rid := t.Rid
	if rid.PID != p.pid {
		return DBError{TupleNotFoundError, fmt.Sprintf("tuple rid %v is not on page %v", rid, p.pid)}
	}
	if rid.SlotNo < 0 || rid.SlotNo >= p.numSlots || !getSlot(p.header, rid.SlotNo) {
		return DBError{TupleNotFoundError, fmt.Sprintf("slot %d of page %v is not occupied", rid.SlotNo, p.pid)}
	}
	p.tuples[rid.SlotNo] = nil
	setSlot(p.header, rid.SlotNo, false)
	return nil
}

func (p *heapPage) getNumEmptySlots() int {
	p.latch.RLock()
	defer p.latch.RUnlock()
	count := 0
	for i := 0; i < p.numSlots; i++ {
		if !getSlot(p.header, i) {
			count++
		}
	}
	return count
}

// getTuple returns the tuple at slot i, or nil if the slot is free.
func (p *heapPage) getTuple(i int) *Tuple {
	p.latch.RLock()
	defer p.latch.RUnlock()
	if i < 0 || i >= p.numSlots {
		return nil
	}
	return p.tuples[i]
}

// Mark the page dirty, recording the transaction that wrote it.
func (p *heapPage) markDirty(tid TransactionID) {
	p.latch.Lock()
	defer p.latch.Unlock()
	p.dirty = true
	p.dirtiedBy = tid
}

func (p *heapPage) clearDirty() {
	p.latch.Lock()
	defer p.latch.Unlock()
	p.dirty = false
	p.dirtiedBy = 0
}

func (p *heapPage) isDirty() bool {
	p.latch.RLock()
	defer p.latch.RUnlock()
	return p.dirty
}

// dirtier reports the transaction that last dirtied the page, if any.
func (p *heapPage) dirtier() (TransactionID, bool) {
	p.latch.RLock()
	defer p.latch.RUnlock()
	return p.dirtiedBy, p.dirty
}

// setBeforeImage snapshots the current page bytes as the before-image.
// The buffer pool calls this after flushing the page at commit.
func (p *heapPage) setBeforeImage() {
	p.latch.Lock()
	defer p.latch.Unlock()
	p.oldData = p.encodeLocked()
}

// restoreBeforeImage replaces the page contents with the before-image,
// reverting every change since the last commit.  Called on abort.
func (p *heapPage) restoreBeforeImage() error {
	p.latch.Lock()
	defer p.latch.Unlock()
	prev, err := newHeapPageFromBytes(p.pid, p.oldData, p.desc)
	if err != nil {
		return err
	}
	p.header = prev.header
	p.tuples = prev.tuples
	return nil
}

// Return a function that iterates through the occupied slots of the
// page in slot order.  Returns nil, nil after the last tuple.
func (p *heapPage) tupleIter() func() (*Tuple, error) {
	i := 0
	return func() (*Tuple, error) {
		for i < p.getNumSlots() {
			t := p.getTuple(i)
			i++
			if t != nil {
				return t, nil
			}
		}
		return nil, nil
	}
}
