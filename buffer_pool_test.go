package rusticdb

import (
	"sync"
	"testing"
	"time"
)

func TestBufferPoolCachesPages(t *testing.T) {
	_, t1, _, hf, bp, tid := makeTestVars(t)
	if err := hf.insertTuple(&t1, tid); err != nil {
		t.Fatalf("insert: %v", err)
	}
	p1, err := bp.GetPage(tid, hf.pageID(0), ReadPerm)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	p2, err := bp.GetPage(tid, hf.pageID(0), ReadPerm)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if p1 != p2 {
		t.Error("repeated gets should return the same cached page")
	}
}

func TestBufferPoolRejectsUnknownTransaction(t *testing.T) {
	_, _, _, hf, bp, _ := makeTestVars(t)
	ghost := NewTID() // never begun
	if _, err := bp.GetPage(ghost, hf.pageID(0), ReadPerm); err == nil {
		t.Error("GetPage for a transaction that was never begun should fail")
	}
}

// Commit releases locks, clears dirty state, and makes the write
// durable.
func TestBufferPoolCommit(t *testing.T) {
	_, t1, _, hf, bp, tid := makeTestVars(t)
	if err := hf.insertTuple(&t1, tid); err != nil {
		t.Fatalf("insert: %v", err)
	}
	page, err := bp.GetPage(tid, hf.pageID(0), ReadPerm)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if !page.isDirty() {
		t.Fatal("page should be dirty before commit")
	}
	bp.CommitTransaction(tid)

	if len(bp.lockMgr.getLockedPages(tid)) != 0 {
		t.Error("commit should release all locks")
	}
	if page.isDirty() {
		t.Error("commit should clear the dirty flag")
	}

	// the flushed bytes are the new before-image: restoring changes
	// nothing
	flushed := page.toBytes()
	if err := page.restoreBeforeImage(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	after := page.toBytes()
	for i := range flushed {
		if flushed[i] != after[i] {
			t.Fatal("before-image should match the committed bytes")
		}
	}
}

// Abort reverts a dirtied page to its before-image in place.
func TestBufferPoolAbortRestoresPage(t *testing.T) {
	_, t1, t2, hf, bp, tid := makeTestVars(t)
	if err := hf.insertTuple(&t1, tid); err != nil {
		t.Fatalf("insert: %v", err)
	}
	bp.CommitTransaction(tid)

	reader := beginTID(t, bp)
	page, err := bp.GetPage(reader, hf.pageID(0), ReadPerm)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	committed := page.toBytes()
	bp.CommitTransaction(reader)

	tid2 := beginTID(t, bp)
	if err := hf.insertTuple(&t2, tid2); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if dirtier, dirty := page.dirtier(); !dirty || dirtier != tid2 {
		t.Fatal("page should be dirtied by the aborting transaction")
	}
	bp.AbortTransaction(tid2)

	after := page.toBytes()
	for i := range committed {
		if committed[i] != after[i] {
			t.Fatal("abort should restore the committed page bytes")
		}
	}
	if page.isDirty() {
		t.Error("abort should clear the dirty flag")
	}
	if len(bp.lockMgr.getLockedPages(tid2)) != 0 {
		t.Error("abort should release all locks")
	}

	// the aborted insert is invisible to a later scan
	tid3 := beginTID(t, bp)
	iter, _ := hf.Iterator(tid3)
	count := 0
	for {
		tup, err := iter()
		if err != nil {
			t.Fatalf("iter: %v", err)
		}
		if tup == nil {
			break
		}
		count++
	}
	if count != 1 {
		t.Errorf("scan saw %d tuples after abort, want 1", count)
	}
}

// A younger transaction that conflicts with an older one dies with
// TransactionAbortedError, and its work is rolled back first.
func TestBufferPoolWaitDieAbort(t *testing.T) {
	_, t1, _, hf, bp, older := makeTestVars(t)
	if err := hf.insertTuple(&t1, older); err != nil {
		t.Fatalf("insert: %v", err)
	}

	younger := beginTID(t, bp)
	_, err := bp.GetPage(younger, hf.pageID(0), ReadPerm)
	abortErr, ok := err.(TransactionAbortedError)
	if !ok {
		t.Fatalf("got %v, want TransactionAbortedError", err)
	}
	if abortErr.TID != younger {
		t.Errorf("aborted tid: got %d, want %d", abortErr.TID, younger)
	}
	if len(bp.lockMgr.getLockedPages(younger)) != 0 {
		t.Error("dead transaction should hold no locks")
	}
	// the older transaction keeps its lock
	if perm, held := bp.lockMgr.holdsLock(older, hf.pageID(0)); !held || perm != WritePerm {
		t.Error("older transaction's exclusive lock should survive")
	}
}

// An older transaction blocks on a younger holder and proceeds once the
// younger commits.
func TestBufferPoolWaitDieWait(t *testing.T) {
	td, _, _, hf, bp, setup := makeTestVars(t)
	bp.CommitTransaction(setup)

	older := beginTID(t, bp)
	younger := beginTID(t, bp)
	tup := Tuple{Desc: td, Fields: []DBValue{IntField{1}, StringField{"y"}}}
	if err := hf.insertTuple(&tup, younger); err != nil {
		t.Fatalf("insert: %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		_, err := bp.GetPage(older, hf.pageID(0), ReadPerm)
		acquired <- err
	}()

	select {
	case err := <-acquired:
		t.Fatalf("older transaction should block, returned %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	bp.CommitTransaction(younger)
	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("older GetPage after commit: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("older transaction never proceeded")
	}
}

// Concurrent inserters, each retrying when WAIT-DIE kills them, end up
// with every tuple inserted exactly once.
func TestBufferPoolConcurrentInserts(t *testing.T) {
	td, _, _, hf, bp, setup := makeTestVars(t)
	bp.CommitTransaction(setup)

	const workers = 4
	const perWorker = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				for {
					tup := Tuple{Desc: td, Fields: []DBValue{IntField{int32(w*perWorker + i)}, StringField{"t"}}}
					tid := NewTID()
					if err := bp.BeginTransaction(tid); err != nil {
						errs <- err
						return
					}
					err := hf.insertTuple(&tup, tid)
					if err == nil {
						bp.CommitTransaction(tid)
						break
					}
					if _, died := err.(TransactionAbortedError); died {
						// rolled back already; retry as a fresh, younger
						// transaction
						time.Sleep(time.Millisecond)
						continue
					}
					bp.AbortTransaction(tid)
					errs <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("worker failed: %v", err)
	}

	if err := bp.lockMgr.validate(); err != nil {
		t.Errorf("lock table invariant: %v", err)
	}

	tid := beginTID(t, bp)
	iter, _ := hf.Iterator(tid)
	seen := make(map[int32]bool)
	total := 0
	for {
		tup, err := iter()
		if err != nil {
			t.Fatalf("iter: %v", err)
		}
		if tup == nil {
			break
		}
		seen[tup.Fields[0].(IntField).Value] = true
		total++
	}
	if total != workers*perWorker {
		t.Errorf("scan saw %d tuples, want %d", total, workers*perWorker)
	}
	if len(seen) != workers*perWorker {
		t.Errorf("scan saw %d distinct tuples, want %d", len(seen), workers*perWorker)
	}
}

func TestBufferPoolFlushAllPages(t *testing.T) {
	_, t1, _, hf, bp, tid := makeTestVars(t)
	if err := hf.insertTuple(&t1, tid); err != nil {
		t.Fatalf("insert: %v", err)
	}
	page, _ := bp.GetPage(tid, hf.pageID(0), ReadPerm)
	bp.FlushAllPages()
	if page.isDirty() {
		t.Error("flushed page should no longer be dirty")
	}
	fresh, err := hf.readPage(0)
	if err != nil {
		t.Fatalf("readPage: %v", err)
	}
	if fresh.getNumEmptySlots() != fresh.getNumSlots()-1 {
		t.Error("flushed tuple should be on disk")
	}
}
