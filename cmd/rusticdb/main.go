package main

// Interactive shell over the storage core: loads a schema, then drives
// the tuple-level API (insert/delete/scan) with one open transaction
// per session that the user commits or aborts explicitly; exiting
// commits a transaction that is still open.

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	rusticdb "github.com/AdamEGorka/rustic-db"
	"github.com/chzyer/readline"
)

const usage = `commands:
  \d                         list tables
  \stats <table>             approximate table statistics
  scan <table>               print all tuples
  insert <table> <v1> ...    insert a tuple
  delete <table> <page> <slot>  delete the tuple at a slot
  commit | abort             finish the current transaction
  exit`

type session struct {
	db  *rusticdb.Database
	tid rusticdb.TransactionID
	// open reports whether tid names a running transaction.
	open bool
}

func (s *session) transaction() (rusticdb.TransactionID, error) {
	if !s.open {
		s.tid = rusticdb.NewTID()
		if err := s.db.BufferPool().BeginTransaction(s.tid); err != nil {
			return 0, err
		}
		s.open = true
	}
	return s.tid, nil
}

// fail reports an operation error.  A WAIT-DIE abort has already rolled
// the transaction back, so the session just starts fresh afterwards.
func (s *session) fail(err error) {
	if _, aborted := err.(rusticdb.TransactionAbortedError); aborted {
		s.open = false
		fmt.Printf("%v; changes rolled back, retry in a new transaction\n", err)
		return
	}
	fmt.Println(err)
}

func main() {
	schemaPath := flag.String("schema", "schema.txt", "schema text file, one table(col: Type, ...) per line")
	dataDir := flag.String("data", "data", "directory holding table .dat files")
	poolPages := flag.Int("pool", rusticdb.DefaultPages, "buffer pool capacity in pages")
	flag.Parse()

	db := rusticdb.NewDatabase(*poolPages)
	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := db.Catalog().LoadSchema(*schemaPath, *dataDir, db.BufferPool()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "rusticdb> ",
		HistoryFile:     os.TempDir() + "/rusticdb_history",
		InterruptPrompt: "^C",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer rl.Close()

	s := &session{db: db}
	fmt.Println(usage)
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			break
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "exit", "quit", `\q`:
			if s.open {
				s.db.BufferPool().CommitTransaction(s.tid)
			}
			return
		case `\d`:
			for _, name := range db.Catalog().TableNames() {
				file, err := db.Catalog().GetTableFromName(name)
				if err != nil {
					continue
				}
				fmt.Printf("%s(%s), %d pages\n", name, strings.TrimSpace(file.Descriptor().HeaderString(false)), file.NumPages())
			}
		case `\stats`:
			if len(args) != 2 {
				fmt.Println(usage)
				continue
			}
			file, err := db.Catalog().GetTableFromName(args[1])
			if err != nil {
				fmt.Println(err)
				continue
			}
			st := file.Stats()
			fmt.Printf("%d live tuples, ~%d distinct\n", st.TupleCount(), st.DistinctEstimate())
		case "scan":
			if len(args) != 2 {
				fmt.Println(usage)
				continue
			}
			s.scan(args[1])
		case "insert":
			if len(args) < 3 {
				fmt.Println(usage)
				continue
			}
			s.insert(args[1], args[2:])
		case "delete":
			if len(args) != 4 {
				fmt.Println(usage)
				continue
			}
			s.delete(args[1], args[2], args[3])
		case "commit":
			if s.open {
				s.db.BufferPool().CommitTransaction(s.tid)
				s.open = false
			}
			fmt.Println("committed")
		case "abort":
			if s.open {
				s.db.BufferPool().AbortTransaction(s.tid)
				s.open = false
			}
			fmt.Println("aborted")
		default:
			fmt.Println(usage)
		}
	}
	if s.open {
		s.db.BufferPool().CommitTransaction(s.tid)
	}
}

func (s *session) scan(table string) {
	file, err := s.db.Catalog().GetTableFromName(table)
	if err != nil {
		fmt.Println(err)
		return
	}
	tid, err := s.transaction()
	if err != nil {
		fmt.Println(err)
		return
	}
	iter, err := file.Iterator(tid)
	if err != nil {
		s.fail(err)
		return
	}
	fmt.Println(file.Descriptor().HeaderString(true))
	n := 0
	for {
		t, err := iter()
		if err != nil {
			s.fail(err)
			return
		}
		if t == nil {
			break
		}
		fmt.Printf("[%d:%d]%s\n", t.Rid.PID.PageNo, t.Rid.SlotNo, t.PrettyPrintString(true))
		n++
	}
	fmt.Printf("(%d rows)\n", n)
}

func (s *session) insert(table string, values []string) {
	file, err := s.db.Catalog().GetTableFromName(table)
	if err != nil {
		fmt.Println(err)
		return
	}
	desc := file.Descriptor()
	if len(values) != len(desc.Fields) {
		fmt.Printf("table %s expects %d values\n", table, len(desc.Fields))
		return
	}
	var fields []rusticdb.DBValue
	for i, v := range values {
		switch desc.Fields[i].Ftype {
		case rusticdb.IntType:
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil {
				fmt.Printf("value %q is not an int\n", v)
				return
			}
			fields = append(fields, rusticdb.IntField{Value: int32(n)})
		case rusticdb.StringType:
			fields = append(fields, rusticdb.StringField{Value: v})
		}
	}
	tid, err := s.transaction()
	if err != nil {
		fmt.Println(err)
		return
	}
	t := &rusticdb.Tuple{Desc: *desc, Fields: fields}
	if err := s.db.BufferPool().InsertTuple(tid, file.ID(), t); err != nil {
		s.fail(err)
		return
	}
	fmt.Printf("inserted at [%d:%d]\n", t.Rid.PID.PageNo, t.Rid.SlotNo)
}

func (s *session) delete(table, pageStr, slotStr string) {
	file, err := s.db.Catalog().GetTableFromName(table)
	if err != nil {
		fmt.Println(err)
		return
	}
	pageNo, err1 := strconv.Atoi(pageStr)
	slotNo, err2 := strconv.Atoi(slotStr)
	if err1 != nil || err2 != nil {
		fmt.Println("page and slot must be integers")
		return
	}
	tid, err := s.transaction()
	if err != nil {
		fmt.Println(err)
		return
	}
	iter, err := file.Iterator(tid)
	if err != nil {
		s.fail(err)
		return
	}
	for {
		t, err := iter()
		if err != nil {
			s.fail(err)
			return
		}
		if t == nil {
			fmt.Printf("no tuple at [%d:%d]\n", pageNo, slotNo)
			return
		}
		if t.Rid.PID.PageNo == pageNo && t.Rid.SlotNo == slotNo {
			if err := s.db.BufferPool().DeleteTuple(tid, file.ID(), t); err != nil {
				s.fail(err)
				return
			}
			fmt.Println("deleted")
			return
		}
	}
}
