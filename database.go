package rusticdb

// Database bundles a catalog and a buffer pool wired to each other.  It
// is a plain value passed around by reference; there is deliberately no
// process-global instance.
type Database struct {
	catalog    *Catalog
	bufferPool *BufferPool
}

// NewDatabase creates an empty database whose buffer pool has the
// supplied declared page capacity.
func NewDatabase(numPages int) *Database {
	c := NewCatalog()
	return &Database{
		catalog:    c,
		bufferPool: NewBufferPool(numPages, c),
	}
}

func (d *Database) Catalog() *Catalog {
	return d.catalog
}

func (d *Database) BufferPool() *BufferPool {
	return d.bufferPool
}
