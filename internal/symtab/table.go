// Package symtab implements interned-name symbol tables: name -> small
// integer id mappings used for method selectors and global variable names.
// The VM keeps two independent tables (methods, globalSymbols); this
// package supplies the type both are built from.
//
// Symbol names are plain Go strings here rather than heap-managed
// ObjStrings — the Go runtime's own GC already outlives the table, so
// there is no need to give names a separate heap-owned lifetime. Symbols
// are never exposed to user code as Values and so never need to
// participate in internal/vm's mark-and-sweep reachability graph.
package symtab

import "github.com/fermian/wren/internal/opcode"

// Table is an ordered, append-only list of interned names. Ids are stable:
// once assigned, a name's id never changes for the lifetime of the table.
type Table struct {
	names  []string
	byName map[string]int
}

// New returns an empty table with the capacity opcode.MaxSymbols implies.
func New() *Table {
	return &Table{
		names:  make([]string, 0, opcode.MaxSymbols),
		byName: make(map[string]int, opcode.MaxSymbols),
	}
}

// Count is the next free id — equivalently, the number of interned names.
func (t *Table) Count() int { return len(t.names) }

// Find returns name's id, or -1 if it has never been interned.
func (t *Table) Find(name string) int {
	if id, ok := t.byName[name]; ok {
		return id
	}
	return -1
}

// Add interns name, failing with -1 if it already exists. Used where
// duplicate registration is a programmer error the caller wants surfaced
// (e.g. defining the same built-in twice).
func (t *Table) Add(name string) int {
	if _, exists := t.byName[name]; exists {
		return -1
	}
	return t.intern(name)
}

// Ensure returns name's existing id, or interns and returns a new one. This
// is the common path: compilers and the VM bootstrap call Ensure almost
// everywhere; Add exists only for call sites that must detect collisions.
func (t *Table) Ensure(name string) int {
	if id, ok := t.byName[name]; ok {
		return id
	}
	return t.intern(name)
}

func (t *Table) intern(name string) int {
	id := len(t.names)
	t.names = append(t.names, name)
	t.byName[name] = id
	return id
}

// Names returns every interned name in assignment order, for diagnostics
// (the debugger's "show globals" view iterates this).
func (t *Table) Names() []string { return t.names }

// Name returns the stable string for id, valid for the table's lifetime.
// Panics on an out-of-range id: that is always a compiler/VM bug, not a
// recoverable runtime condition — symbol misuse is an implementation
// -enforced invariant, not a user-facing error.
func (t *Table) Name(id int) string {
	if id < 0 || id >= len(t.names) {
		panic("symtab: id out of range")
	}
	return t.names[id]
}
