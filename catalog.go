package rusticdb

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/exp/maps"
)

// Catalog is the registry mapping table names and table ids to heap
// files.  Both indexes are published under one latch, so a concurrent
// reader sees a table in either both or neither.  Names are case
// sensitive; adding a table under an existing name replaces it
// silently.
type Catalog struct {
	mu       sync.RWMutex
	tables   map[string]*HeapFile
	tableIDs map[uint64]*HeapFile
}

func NewCatalog() *Catalog {
	return &Catalog{
		tables:   make(map[string]*HeapFile),
		tableIDs: make(map[uint64]*HeapFile),
	}
}

// AddTable registers the heap file under the supplied name and under
// its table id.
func (c *Catalog) AddTable(file *HeapFile, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[name] = file
	c.tableIDs[file.ID()] = file
}

// GetTableFromName retrieves the table with the specified name.
func (c *Catalog) GetTableFromName(name string) (*HeapFile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	file, ok := c.tables[name]
	if !ok {
		return nil, DBError{NoSuchTableError, fmt.Sprintf("no table named %s", name)}
	}
	return file, nil
}

// GetTableFromID retrieves the table with the specified id.
func (c *Catalog) GetTableFromID(id uint64) (*HeapFile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	file, ok := c.tableIDs[id]
	if !ok {
		return nil, DBError{NoSuchTableError, fmt.Sprintf("no table with id %d", id)}
	}
	return file, nil
}

// GetTupleDesc retrieves the tuple descriptor of the specified table.
func (c *Catalog) GetTupleDesc(id uint64) (*TupleDesc, error) {
	file, err := c.GetTableFromID(id)
	if err != nil {
		return nil, err
	}
	return file.Descriptor(), nil
}

// TableNames returns the registered table names in sorted order.
func (c *Catalog) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := maps.Keys(c.tables)
	sort.Strings(names)
	return names
}

// LoadSchema reads a schema text file and registers a heap file for
// each table it declares.  The format is one table per line,
//
//	table_name(col: Type, col: Type, ...)
//
// with types drawn from Int and String and whitespace ignored.  Each
// table's backing file is created (or reopened) as <dataDir>/<name>.dat.
func (c *Catalog) LoadSchema(schemaPath, dataDir string, bp *BufferPool) error {
	schemaFile, err := os.Open(schemaPath)
	if err != nil {
		return DBError{IOError, fmt.Sprintf("open schema %s: %v", schemaPath, err)}
	}
	defer schemaFile.Close()

	scanner := bufio.NewScanner(schemaFile)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, td, err := parseSchemaLine(line)
		if err != nil {
			return err
		}
		file, err := NewHeapFile(filepath.Join(dataDir, name+".dat"), td, bp)
		if err != nil {
			return err
		}
		c.AddTable(file, name)
	}
	if err := scanner.Err(); err != nil {
		return DBError{IOError, fmt.Sprintf("read schema %s: %v", schemaPath, err)}
	}
	return nil
}

func parseSchemaLine(line string) (string, *TupleDesc, error) {
	open := strings.Index(line, "(")
	if open < 0 || !strings.HasSuffix(line, ")") {
		return "", nil, DBError{MalformedDataError, fmt.Sprintf("malformed schema line %q", line)}
	}
	strip := func(s string) string { return strings.Join(strings.Fields(s), "") }
	name := strip(line[:open])
	if name == "" {
		return "", nil, DBError{MalformedDataError, fmt.Sprintf("schema line %q has no table name", line)}
	}

	var fields []FieldType
	for _, col := range strings.Split(line[open+1:len(line)-1], ",") {
		parts := strings.Split(col, ":")
		if len(parts) != 2 {
			return "", nil, DBError{MalformedDataError, fmt.Sprintf("malformed column %q in schema line %q", col, line)}
		}
		fname := strip(parts[0])
		var ftype DBType
		switch strip(parts[1]) {
		case "Int":
			ftype = IntType
		case "String":
			ftype = StringType
		default:
			return "", nil, DBError{MalformedDataError, fmt.Sprintf("invalid field type %q in schema line %q", parts[1], line)}
		}
		fields = append(fields, FieldType{Fname: fname, Ftype: ftype})
	}
	return name, &TupleDesc{Fields: fields}, nil
}
