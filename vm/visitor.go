package vm

// ---------------------------------------------------------------------------
// Pointer visitor protocol (Component D)
// ---------------------------------------------------------------------------
//
// A PointerVisitor is handed every slot of a heap object that can hold a
// Value, one at a time, and may rewrite it in place by returning a
// replacement. This one interface serves both "visit pointers only"
// traversals (the scavenger, the marker, remembered-set recording) and
// "visit everything including immediates" traversals (the snapshot
// re-boxing pass in Component I): the distinction lives entirely in the
// visitor implementation, not in a second traversal method on every
// object type. A visitor that only cares about heap pointers simply
// returns its input unchanged whenever VisitSlot is called with a Smi.
type PointerVisitor interface {
	// VisitSlot is called once per Value-holding slot. It returns the
	// Value that should be stored back into the slot; returning the
	// same Value is a no-op.
	VisitSlot(v Value) Value
}

// VisitBlockFunc adapts a plain function into a PointerVisitor.
type VisitBlockFunc func(Value) Value

func (f VisitBlockFunc) VisitSlot(v Value) Value { return f(v) }

// VisitObject calls vis on every pointer-or-immediate slot of the object
// v points to, in a fixed order, storing back whatever the visitor
// returns. Class pointers are not visited here -- see VisitClassPointer
// -- because ordinary process-heap traversals (scavenge, mark, sweep)
// never need to relocate a class; only program GC's cooked-heap pass
// does, and it calls VisitClassPointer explicitly for that reason.
func VisitObject(v Value, vis PointerVisitor) {
	switch o := v.Obj().(type) {
	case *Instance:
		for i, s := range o.Slots {
			o.Slots[i] = vis.VisitSlot(s)
		}
	case *Array:
		for i, s := range o.Elements {
			o.Elements[i] = vis.VisitSlot(s)
		}
	case *ByteArray:
		// no pointer slots
	case *Function:
		for i, s := range o.Literals {
			o.Literals[i] = vis.VisitSlot(s)
		}
	case *Class:
		o.Super = vis.VisitSlot(o.Super)
		o.Meta = vis.VisitSlot(o.Meta)
		for sel, fn := range o.Methods {
			o.Methods[sel] = vis.VisitSlot(fn)
		}
	case *Stack:
		for i, s := range o.Slots {
			o.Slots[i] = vis.VisitSlot(s)
		}
		o.Next = vis.VisitSlot(o.Next)
	case *BoxedDouble:
		// no pointer slots
	case *LargeInteger:
		// no pointer slots
	case *Cell:
		o.Value = vis.VisitSlot(o.Value)
	case *Port:
		o.Target = vis.VisitSlot(o.Target)
		o.ProcessID = vis.VisitSlot(o.ProcessID)
	}
}

// VisitClassPointer rewrites v's class pointer through vis. Used only by
// the program GC's cooked-heap-object-pointer-visitor pass (Component
// H), which is the one traversal that may need to relocate classes that
// process-heap objects point into.
func VisitClassPointer(v Value, vis PointerVisitor) {
	h := v.HeaderOf()
	h.Class = vis.VisitSlot(h.Class)
}

// VisitEverything is like VisitObject but also offers every immediate
// (non-pointer) slot to the visitor -- used by the snapshot-reshape GC's
// integer re-boxing pass (Component I), which must inspect Smis too.
// Non-Value payloads (bytes, floats, big.Int) are untouched: re-boxing
// only ever changes which Value a slot holds, never a raw field.
func VisitEverything(v Value, vis PointerVisitor) {
	VisitObject(v, vis)
}

// ForEachRoot visits every root Value in roots through vis, in the
// order given, rewriting the slice in place. Used by iterate_roots
// callers (process roots, program roots) so that root order -- which
// Component G's layout invariants depend on -- is always caller-
// controlled rather than implied by map iteration.
func ForEachRoot(roots []Value, vis PointerVisitor) {
	for i, r := range roots {
		roots[i] = vis.VisitSlot(r)
	}
}
