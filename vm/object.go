package vm

import (
	"fmt"
	"math/big"
	"unsafe"
)

// ---------------------------------------------------------------------------
// Heap object model
// ---------------------------------------------------------------------------
//
// Every heap object is a Go struct whose first field is a Header. That
// field ordering is load-bearing: given only a *Header (which is what a
// Value decodes to), Kind tells us which concrete struct it is the first
// field of, and we can recover the concrete pointer with an unsafe cast
// back to the struct type, because Go guarantees a struct and the struct
// embedding it as its first field share an address.
//
// This replaces a byte-arena object model with one where "moving" an
// object means allocating a fresh Go struct of the same kind and copying
// the old one's fields into it, then installing a forwarding Value in the
// old Header. The class pointer in Header is never overwritten to make
// room for a forwarding pointer -- Header.forward is a dedicated field --
// so the "first word is always a valid class pointer" invariant in
// Component A holds even mid-collection, which a classic header-clobber
// forwarding scheme cannot promise.

// Kind identifies which concrete Go type a Header belongs to.
type Kind uint8

const (
	KindInstance Kind = iota
	KindArray
	KindByteArray
	KindFunction
	KindClass
	KindStack
	KindBoxedDouble
	KindLargeInteger
	KindCell
	KindPort
)

func (k Kind) String() string {
	switch k {
	case KindInstance:
		return "Instance"
	case KindArray:
		return "Array"
	case KindByteArray:
		return "ByteArray"
	case KindFunction:
		return "Function"
	case KindClass:
		return "Class"
	case KindStack:
		return "Stack"
	case KindBoxedDouble:
		return "BoxedDouble"
	case KindLargeInteger:
		return "LargeInteger"
	case KindCell:
		return "Cell"
	case KindPort:
		return "Port"
	default:
		return "Unknown"
	}
}

// Header is the common prefix of every heap object.
type Header struct {
	Class   Value // pointer to the object's Class; valid at all times
	kind    Kind
	mark    bool  // old-space mark-sweep/compact mark bit
	age     uint8 // new-space survival count, for promote-on-second-survival (see DESIGN.md)
	forward Value // installed by the scavenger/compactor; zero means "not forwarded"
}

// Kind returns which concrete object type h belongs to.
func (h *Header) Kind() Kind { return h.kind }

// IsForwarded reports whether the object has already been relocated by
// the collector currently running.
func (h *Header) IsForwarded() bool { return h.forward != 0 }

// Forward installs a forwarding pointer to the object's new location.
func (h *Header) Forward(to Value) { h.forward = to }

// ForwardingTarget returns the forwarding pointer installed by Forward.
func (h *Header) ForwardingTarget() Value { return h.forward }

// ClearForwarding removes the forwarding pointer. The collectors in this
// package do not call it: a forwarded original is dropped from its space
// and its copy starts with the forward field it had before the move.
func (h *Header) ClearForwarding() { h.forward = 0 }

// Marked reports the old-space mark bit.
func (h *Header) Marked() bool { return h.mark }

// SetMarked sets or clears the old-space mark bit.
func (h *Header) SetMarked(m bool) { h.mark = m }

// Age returns the new-space survival counter.
func (h *Header) Age() uint8 { return h.age }

// Bump increments the survival counter and returns the new value.
func (h *Header) Bump() uint8 { h.age++; return h.age }

// headerToObj recovers the concrete object pointer that h is the Header
// of. The kind switch exists exactly once, here; everything else goes
// through Value.Obj()/Header.Kind().
func headerToObj(h *Header) interface{} {
	switch h.kind {
	case KindInstance:
		return (*Instance)(unsafe.Pointer(h))
	case KindArray:
		return (*Array)(unsafe.Pointer(h))
	case KindByteArray:
		return (*ByteArray)(unsafe.Pointer(h))
	case KindFunction:
		return (*Function)(unsafe.Pointer(h))
	case KindClass:
		return (*Class)(unsafe.Pointer(h))
	case KindStack:
		return (*Stack)(unsafe.Pointer(h))
	case KindBoxedDouble:
		return (*BoxedDouble)(unsafe.Pointer(h))
	case KindLargeInteger:
		return (*LargeInteger)(unsafe.Pointer(h))
	case KindCell:
		return (*Cell)(unsafe.Pointer(h))
	case KindPort:
		return (*Port)(unsafe.Pointer(h))
	default:
		panic(fmt.Sprintf("headerToObj: unknown kind %d", h.kind))
	}
}

// Obj recovers the concrete Go value (one of the *Instance, *Array, ...
// pointer types) that v points to. Panics if v is not a heap pointer.
func (v Value) Obj() interface{} { return headerToObj(v.HeaderOf()) }

// HeapObj is implemented by every concrete heap object type; it is how
// Space.Allocate gets at the embedded Header without a second type
// switch alongside headerToObj's.
type HeapObj interface {
	headerPtr() *Header
}

func (o *Instance) headerPtr() *Header     { return &o.Header }
func (o *Array) headerPtr() *Header        { return &o.Header }
func (o *ByteArray) headerPtr() *Header    { return &o.Header }
func (o *Function) headerPtr() *Header     { return &o.Header }
func (o *Class) headerPtr() *Header        { return &o.Header }
func (o *Stack) headerPtr() *Header        { return &o.Header }
func (o *BoxedDouble) headerPtr() *Header  { return &o.Header }
func (o *LargeInteger) headerPtr() *Header { return &o.Header }
func (o *Cell) headerPtr() *Header         { return &o.Header }
func (o *Port) headerPtr() *Header         { return &o.Header }

// ValueOf returns the tagged Value pointing at o.
func ValueOf(o HeapObj) Value {
	return FromObjectPtr(unsafe.Pointer(o.headerPtr()))
}

// ---------------------------------------------------------------------------
// Instance: a fixed-slot object, the common case for user-level objects.
// ---------------------------------------------------------------------------

type Instance struct {
	Header
	Slots []Value
}

func NewInstance(class Value, numSlots int) *Instance {
	return &Instance{Header: Header{Class: class, kind: KindInstance}, Slots: make([]Value, numSlots)}
}

func (o *Instance) NumSlots() int          { return len(o.Slots) }
func (o *Instance) GetSlot(i int) Value    { return o.Slots[i] }
func (o *Instance) SetSlot(i int, v Value) { o.Slots[i] = v }

// ---------------------------------------------------------------------------
// Array: a variable-length, all-pointer object.
// ---------------------------------------------------------------------------

type Array struct {
	Header
	Elements []Value
}

func NewArray(class Value, length int) *Array {
	return &Array{Header: Header{Class: class, kind: KindArray}, Elements: make([]Value, length)}
}

func (a *Array) Len() int             { return len(a.Elements) }
func (a *Array) At(i int) Value       { return a.Elements[i] }
func (a *Array) AtPut(i int, v Value) { a.Elements[i] = v }

// ---------------------------------------------------------------------------
// ByteArray: a variable-length, non-pointer object. Also backs String.
// ---------------------------------------------------------------------------

type ByteArray struct {
	Header
	Bytes []byte
}

func NewByteArray(class Value, length int) *ByteArray {
	return &ByteArray{Header: Header{Class: class, kind: KindByteArray}, Bytes: make([]byte, length)}
}

func NewString(class Value, s string) *ByteArray {
	b := NewByteArray(class, len(s))
	copy(b.Bytes, s)
	return b
}

func (b *ByteArray) String() string { return string(b.Bytes) }
func (b *ByteArray) Len() int       { return len(b.Bytes) }

// ---------------------------------------------------------------------------
// Function: arity, literal pool, trailing bytecode.
// ---------------------------------------------------------------------------

type Function struct {
	Header
	Arity    int
	Literals []Value
	Bytecode []byte
}

func NewFunction(class Value, arity int, literals []Value, bytecode []byte) *Function {
	return &Function{
		Header:   Header{Class: class, kind: KindFunction},
		Arity:    arity,
		Literals: literals,
		Bytecode: bytecode,
	}
}

// EntryPointer returns the stable bytecode address for offset 0 of the
// function. It is stable only while the function itself is not moved by
// a collection; code that holds one across a potential program GC must
// "cook" it first -- see stack.go.
func (f *Function) EntryPointer() unsafe.Pointer {
	if len(f.Bytecode) == 0 {
		return nil
	}
	return unsafe.Pointer(&f.Bytecode[0])
}

// ContainsBytecodePointer reports whether bcp falls within this
// function's bytecode blob, and if so, the offset from the start.
func (f *Function) ContainsBytecodePointer(bcp unsafe.Pointer) (offset int, ok bool) {
	if len(f.Bytecode) == 0 {
		return 0, false
	}
	start := uintptr(unsafe.Pointer(&f.Bytecode[0]))
	end := start + uintptr(len(f.Bytecode))
	p := uintptr(bcp)
	if p < start || p >= end {
		return 0, false
	}
	return int(p - start), true
}

// BytecodePointerAt returns the raw bytecode address of the given offset
// into this function's bytecode blob.
func (f *Function) BytecodePointerAt(offset int) unsafe.Pointer {
	return unsafe.Pointer(&f.Bytecode[offset])
}

// ---------------------------------------------------------------------------
// Class: instance format, super/meta pointers, method dictionary.
// ---------------------------------------------------------------------------

// InstanceFormat describes how instances of a class are laid out, which
// is exactly the information Component A's size()/iterate_pointers()
// need without inspecting anything but the class pointer.
type InstanceFormat uint8

const (
	FormatInstance InstanceFormat = iota
	FormatArray
	FormatByteArray
	FormatFunction
	FormatClass
	FormatStack
	FormatBoxedDouble
	FormatLargeInteger
	FormatCell
	FormatPort
)

type Class struct {
	Header
	Meta         Value // self-referential for the meta-class singleton
	Super        Value
	Name         string
	InstVarNames []string
	Format       InstanceFormat
	Methods      map[int]Value  // selector ID -> Function, local to this class
	ClassVars    map[string]Value // class-side (shared) variable storage, local to this class
}

// NewClass creates a class. metaClass may be the zero Value while
// bootstrapping the class/meta-class cycle; Program.Initialize patches
// it once the meta-class object itself exists.
func NewClass(metaClass Value, name string, super Value, format InstanceFormat, instVarNames []string) *Class {
	return &Class{
		Header:       Header{Class: metaClass, kind: KindClass},
		Super:        super,
		Name:         name,
		InstVarNames: instVarNames,
		Format:       format,
		Methods:      make(map[int]Value),
		ClassVars:    make(map[string]Value),
	}
}

// AddMethod installs fn as the method for selectorID, local to c.
func (c *Class) AddMethod(selectorID int, fn Value) { c.Methods[selectorID] = fn }

// LookupMethod walks the superclass chain starting at c, stopping at the
// first class (if any) that defines selectorID locally.
func LookupMethod(c Value, selectorID int) (Value, bool) {
	for c != 0 {
		class := c.Obj().(*Class)
		if fn, ok := class.Methods[selectorID]; ok {
			return fn, true
		}
		c = class.Super
	}
	return 0, false
}

// IsSubclassOf reports whether c is class or a (possibly transitive)
// subclass of class, by walking the superclass chain.
func IsSubclassOf(c, class Value) bool {
	for c != 0 {
		if c == class {
			return true
		}
		c = c.Obj().(*Class).Super
	}
	return false
}

// ---------------------------------------------------------------------------
// Stack: slot region plus the chaining field used by program GC.
// ---------------------------------------------------------------------------

type Stack struct {
	Header
	Slots []Value
	Next  Value // set by chainStacks during program GC; sentinel 0 terminates the chain
}

func NewStack(class Value, length int) *Stack {
	return &Stack{Header: Header{Class: class, kind: KindStack}, Slots: make([]Value, length)}
}

func (s *Stack) Len() int { return len(s.Slots) }

// ---------------------------------------------------------------------------
// BoxedDouble, LargeInteger: non-pointer payload objects.
// ---------------------------------------------------------------------------

type BoxedDouble struct {
	Header
	F float64
}

func NewBoxedDouble(class Value, f float64) *BoxedDouble {
	return &BoxedDouble{Header: Header{Class: class, kind: KindBoxedDouble}, F: f}
}

// LargeInteger boxes an integer outside the portable Smi range
// (MinSmallInt..MaxSmallInt). Used both for ordinary bignum arithmetic
// overflow and for the snapshot-reshape GC's 64-to-32-bit re-boxing pass
// (Component I), which promotes Smis that don't survive the narrower
// range into one of these.
type LargeInteger struct {
	Header
	Int *big.Int
}

func NewLargeInteger(class Value, n *big.Int) *LargeInteger {
	return &LargeInteger{Header: Header{Class: class, kind: KindLargeInteger}, Int: n}
}

// ---------------------------------------------------------------------------
// Cell: single-slot indirection, used to box a variable captured by a
// closure so the closure and its defining scope share mutations to it.
// ---------------------------------------------------------------------------

type Cell struct {
	Header
	Value Value
}

func NewCell(class Value, v Value) *Cell {
	return &Cell{Header: Header{Class: class, kind: KindCell}, Value: v}
}

// ---------------------------------------------------------------------------
// Port: the weak-pointer/cleanup unit visited by the scavenger's
// post-pass (Component E) and reaped by the registry GC (Component K).
// ---------------------------------------------------------------------------

type Port struct {
	Header
	Target    Value // weakly held; cleared by PortRegistry.ProcessPorts when its target dies
	ProcessID Value
	Closed    bool
}

func NewPort(class Value, target Value, processID Value) *Port {
	return &Port{Header: Header{Class: class, kind: KindPort}, Target: target, ProcessID: processID}
}

// ---------------------------------------------------------------------------
// Size: the logical slot count used for heap accounting (Space.used()
// bookkeeping), not a Go unsafe.Sizeof of the backing struct.
// ---------------------------------------------------------------------------

// Size returns the number of Value-sized words the object logically
// occupies, for heap accounting and for picking an allocation budget. It
// does not need to match Go's actual struct layout; it only needs to be
// consistent for growth-budget decisions in space.go.
func Size(o interface{}) int {
	switch t := o.(type) {
	case *Instance:
		return 1 + len(t.Slots)
	case *Array:
		return 1 + len(t.Elements)
	case *ByteArray:
		return 1 + (len(t.Bytes)+7)/8
	case *Function:
		return 2 + len(t.Literals) + (len(t.Bytecode)+7)/8
	case *Class:
		return 3 + len(t.InstVarNames)
	case *Stack:
		return 2 + len(t.Slots)
	case *BoxedDouble:
		return 2
	case *LargeInteger:
		return 2 + (t.Int.BitLen()+63)/64
	case *Cell:
		return 2
	case *Port:
		return 3
	default:
		panic(fmt.Sprintf("Size: unknown object type %T", o))
	}
}
