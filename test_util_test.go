package rusticdb

import (
	"os"
	"testing"
)

// makeTestVars builds the standard two-column test table: an int column
// "a" and a string column "b" (tuple size 264, 15 slots per page), plus
// a fresh buffer pool, catalog entry, and running transaction.
func makeTestVars(t *testing.T) (TupleDesc, Tuple, Tuple, *HeapFile, *BufferPool, TransactionID) {
	td := TupleDesc{Fields: []FieldType{
		{Fname: "a", Ftype: IntType},
		{Fname: "b", Ftype: StringType},
	}}
	t1 := Tuple{
		Desc:   td,
		Fields: []DBValue{IntField{0}, StringField{"x"}},
	}
	t2 := Tuple{
		Desc:   td,
		Fields: []DBValue{IntField{1}, StringField{"y"}},
	}

	os.Remove("test.dat")
	c := NewCatalog()
	bp := NewBufferPool(DefaultPages, c)
	hf, err := NewHeapFile("test.dat", &td, bp)
	if err != nil {
		t.Fatalf("NewHeapFile: %v", err)
	}
	c.AddTable(hf, "test")

	tid := NewTID()
	if err := bp.BeginTransaction(tid); err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	return td, t1, t2, hf, bp, tid
}

// beginTID mints and begins a fresh transaction.
func beginTID(t *testing.T, bp *BufferPool) TransactionID {
	tid := NewTID()
	if err := bp.BeginTransaction(tid); err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	return tid
}
