package rusticdb

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// A HeapFile is an unordered collection of tuples backed by one file on
// disk: a raw sequence of PageSize-aligned pages.  All page access by
// transactions goes through the buffer pool; the file itself only
// performs page-granularity I/O.
//
// HeapFile is a public class because external callers may wish to
// populate tables using LoadFromCSV.
type HeapFile struct {
	file        *os.File
	fileMu      sync.Mutex
	backingFile string
	td          *TupleDesc
	id          uint64
	bufPool     *BufferPool
	stats       *TableStats
}

// NewHeapFile creates a HeapFile.
//   - fromFile: backing file. May be empty or a previously created heap
//     file.
//   - td: the TupleDesc for the HeapFile.
//   - bp: the BufferPool that mediates page access for transactions.
//
// Each heap file is assigned a random stable table id at creation.
func NewHeapFile(fromFile string, td *TupleDesc, bp *BufferPool) (*HeapFile, error) {
	file, err := os.OpenFile(fromFile, os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, DBError{IOError, fmt.Sprintf("open %s: %v", fromFile, err)}
	}
	u := uuid.New()
	return &HeapFile{
		file:        file,
		backingFile: fromFile,
		td:          td.copy(),
		id:          binary.BigEndian.Uint64(u[:8]),
		bufPool:     bp,
		stats:       newTableStats(),
	}, nil
}

// ID returns the stable table id of this heap file.
func (f *HeapFile) ID() uint64 {
	return f.id
}

// BackingFile returns the name of the backing file.
func (f *HeapFile) BackingFile() string {
	return f.backingFile
}

// Descriptor returns the TupleDesc of this heap file's tuples.
func (f *HeapFile) Descriptor() *TupleDesc {
	return f.td
}

// Stats returns the table's approximate statistics.
func (f *HeapFile) Stats() *TableStats {
	return f.stats
}

func (f *HeapFile) pageID(pageNo int) HeapPageID {
	return HeapPageID{TableID: f.id, PageNo: pageNo}
}

// NumPages returns the number of pages in the heap file.
func (f *HeapFile) NumPages() int {
	f.fileMu.Lock()
	defer f.fileMu.Unlock()
	return f.numPagesLocked()
}

func (f *HeapFile) numPagesLocked() int {
	info, err := f.file.Stat()
	if err != nil {
		return 0
	}
	return int((info.Size() + PageSize - 1) / PageSize)
}

// readPage reads the specified page from disk.  If the file does not
// reach the requested page yet, it is first extended with zero-filled
// pages up to and including it; this is the sole mechanism that grows a
// heap file.  Called by BufferPool.GetPage on a cache miss.
func (f *HeapFile) readPage(pageNo int) (*heapPage, error) {
	data := make([]byte, PageSize)

	f.fileMu.Lock()
	numPages := f.numPagesLocked()
	for numPages <= pageNo {
		if _, err := f.file.WriteAt(data, int64(numPages)*PageSize); err != nil {
			f.fileMu.Unlock()
			return nil, DBError{IOError, fmt.Sprintf("extend %s to page %d: %v", f.backingFile, numPages, err)}
		}
		numPages++
	}
	if _, err := f.file.ReadAt(data, int64(pageNo)*PageSize); err != nil {
		f.fileMu.Unlock()
		return nil, DBError{IOError, fmt.Sprintf("read page %d of %s: %v", pageNo, f.backingFile, err)}
	}
	f.fileMu.Unlock()

	return newHeapPageFromBytes(f.pageID(pageNo), data, f.td)
}

// flushPage forces the specified page back to the backing file at the
// offset its page number names.  Called by the buffer pool at commit.
func (f *HeapFile) flushPage(p *heapPage) error {
	data := p.toBytes()
	f.fileMu.Lock()
	defer f.fileMu.Unlock()
	if _, err := f.file.WriteAt(data, int64(p.getID().PageNo)*PageSize); err != nil {
		return DBError{IOError, fmt.Sprintf("write page %d of %s: %v", p.getID().PageNo, f.backingFile, err)}
	}
	return nil
}

// insertTuple adds the tuple to the heap file on behalf of the
// transaction, scanning pages from the start for a free slot.
//
// Each page is first probed under a shared lock; only a page with room
// is re-requested with write permission, upgrading the transaction's
// lock.  Another transaction may fill the page between the probe and
// the upgrade, so fullness is re-checked under the exclusive lock (the
// page's own insert reports PageFullError) and the scan then moves on.
// A scan that exhausts the file requests the page one past the end,
// which grows the file by a zero page.
func (f *HeapFile) insertTuple(t *Tuple, tid TransactionID) error {
	if len(t.Fields) != len(f.td.Fields) {
		return DBError{TypeMismatchError, fmt.Sprintf("tuple has %d fields, table %s expects %d", len(t.Fields), f.backingFile, len(f.td.Fields))}
	}
	if slotsPerPage(f.td) == 0 {
		return DBError{PageFullError, fmt.Sprintf("tuples of table %s do not fit on a page", f.backingFile)}
	}
	for pageNo := 0; ; pageNo++ {
		pid := f.pageID(pageNo)
		appending := pageNo >= f.NumPages()

		if !appending {
			page, err := f.bufPool.GetPage(tid, pid, ReadPerm)
			if err != nil {
				return err
			}
			if page.getNumEmptySlots() == 0 {
				continue
			}
		}

		page, err := f.bufPool.GetPage(tid, pid, WritePerm)
		if err != nil {
			return err
		}
		if _, err := page.insertTuple(t); err != nil {
			// The page may have filled between the shared probe and
			// the lock upgrade; move the scan on.
			var dbe DBError
			if errors.As(err, &dbe) && dbe.code == PageFullError {
				continue
			}
			return err
		}
		page.markDirty(tid)
		f.stats.recordInsert(t)
		return nil
	}
}

// deleteTuple removes the tuple, located by its record id, from the
// heap file on behalf of the transaction.
func (f *HeapFile) deleteTuple(t *Tuple, tid TransactionID) error {
	pid := t.Rid.PID
	if pid.TableID != f.id {
		return DBError{TupleNotFoundError, fmt.Sprintf("tuple rid %v does not belong to table %s", t.Rid, f.backingFile)}
	}
	page, err := f.bufPool.GetPage(tid, pid, WritePerm)
	if err != nil {
		return err
	}
	if err := page.deleteTuple(t); err != nil {
		return err
	}
	page.markDirty(tid)
	f.stats.recordDelete(t)
	return nil
}

// pageIterator returns a function that lazily yields the file's pages
// in order, acquiring a lock with the supplied permission on each page
// before yielding it.  The page count is re-read at every step, so
// pages appended by concurrent transactions are observed.  Returns
// nil, nil after the last page.
func (f *HeapFile) pageIterator(tid TransactionID, perm RWPerm) func() (*heapPage, error) {
	pageNo := 0
	return func() (*heapPage, error) {
		if pageNo >= f.NumPages() {
			return nil, nil
		}
		page, err := f.bufPool.GetPage(tid, f.pageID(pageNo), perm)
		if err != nil {
			return nil, err
		}
		pageNo++
		return page, nil
	}
}

// Iterator returns a function that iterates through the tuples of the
// heap file in page and slot order, reading pages through the buffer
// pool under shared locks.  Returned tuples carry record ids usable
// with deleteTuple.
func (f *HeapFile) Iterator(tid TransactionID) (func() (*Tuple, error), error) {
	pages := f.pageIterator(tid, ReadPerm)
	var tuples func() (*Tuple, error)
	return func() (*Tuple, error) {
		for {
			if tuples == nil {
				page, err := pages()
				if err != nil {
					return nil, err
				}
				if page == nil {
					return nil, nil
				}
				tuples = page.tupleIter()
			}
			t, err := tuples()
			if err != nil {
				return nil, err
			}
			if t != nil {
				return t, nil
			}
			tuples = nil
		}
	}, nil
}

// Load the contents of a heap file from a specified CSV file.
// Parameters are as follows:
//   - hasHeader: whether or not the CSV file has a header
//   - sep: the character to use to separate fields
//   - skipLastField: if true, the final field is skipped (some TPC
//     datasets include a trailing separator on each line)
//
// Returns an error if the file cannot be read or a line is malformed.
func (f *HeapFile) LoadFromCSV(file *os.File, hasHeader bool, sep string, skipLastField bool) error {
	scanner := bufio.NewScanner(file)
	cnt := 0
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Split(line, sep)
		if skipLastField {
			fields = fields[0 : len(fields)-1]
		}
		cnt++
		if len(fields) != len(f.td.Fields) {
			return DBError{MalformedDataError, fmt.Sprintf("line %d (%s) does not have expected number of fields (expected %d, got %d)", cnt, line, len(f.td.Fields), len(fields))}
		}
		if cnt == 1 && hasHeader {
			continue
		}
		var newFields []DBValue
		for fno, field := range fields {
			switch f.td.Fields[fno].Ftype {
			case IntType:
				field = strings.TrimSpace(field)
				floatVal, err := strconv.ParseFloat(field, 64)
				if err != nil {
					return DBError{TypeMismatchError, fmt.Sprintf("couldn't convert value %s to int, line %d", field, cnt)}
				}
				newFields = append(newFields, IntField{int32(floatVal)})
			case StringType:
				if len(field) > StringLength {
					field = field[0:StringLength]
				}
				newFields = append(newFields, StringField{field})
			}
		}
		newT := Tuple{Desc: *f.td.copy(), Fields: newFields}

		tid := NewTID()
		if err := f.bufPool.BeginTransaction(tid); err != nil {
			return err
		}
		if err := f.insertTuple(&newT, tid); err != nil {
			f.bufPool.AbortTransaction(tid)
			return err
		}
		f.bufPool.CommitTransaction(tid)
	}
	if err := scanner.Err(); err != nil {
		return DBError{IOError, fmt.Sprintf("scan csv: %v", err)}
	}
	return nil
}
