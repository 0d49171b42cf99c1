package vm

import "fmt"

// ---------------------------------------------------------------------------
// Heap validation (Component L, supplemental)
// ---------------------------------------------------------------------------
//
// Grounded on program.cc's ValidateHeapsAreConsistent/ValidateSharedHeap:
// a debug-only pass, enabled by Config.Debug.ValidateHeaps, that walks every
// live object and checks the one invariant the rest of this package
// depends on without ever re-checking at runtime -- that a heap pointer
// always leads to an object whose own class pointer is itself a Class.
// A validator that finds a violation reports it as ErrHeapValidationFailed
// rather than panicking directly, so CollectGarbage's caller decides
// whether a validation failure is fatal.

// ValidateHeaps walks program space and the shared heap's new-space and
// old-space, plus every process's stack chain (its roots beyond the
// stack are not checked), and returns
// ErrHeapValidationFailed (wrapped with the specific complaint) at the
// first inconsistency found.
func (p *Program) ValidateHeaps(processes []Process) error {
	v := &heapValidator{prog: p}

	for _, o := range p.space.objects {
		if err := v.checkObject(o); err != nil {
			return err
		}
	}
	check := func(o HeapObj) error { return v.checkObject(o) }
	for _, o := range p.Shared.NewSpace().objects {
		if err := check(o); err != nil {
			return err
		}
	}
	for _, o := range p.Shared.OldSpace().objects {
		if err := check(o); err != nil {
			return err
		}
	}

	for _, proc := range processes {
		if err := v.checkStackChain(proc.Stack()); err != nil {
			return err
		}
	}

	return nil
}

type heapValidator struct {
	prog *Program
	err  error
}

// VisitSlot lets heapValidator double as a PointerVisitor, for checking
// every slot of an already-validated object's own pointer fields
// without a second bespoke traversal.
func (v *heapValidator) VisitSlot(val Value) Value {
	if v.err == nil {
		v.err = v.checkValue(val)
	}
	return val
}

func (v *heapValidator) checkObject(o HeapObj) error {
	val := ValueOf(o)
	if err := v.checkValue(val); err != nil {
		return err
	}
	v.err = nil
	VisitObject(val, v)
	if v.err != nil {
		return v.err
	}
	return nil
}

// checkValue verifies val is either an immediate or a pointer whose
// target's class field itself holds a Class object -- the minimal
// "first word is always a valid class pointer" invariant §4.A commits
// to, checked here rather than trusted.
func (v *heapValidator) checkValue(val Value) error {
	if val.IsSmallInt() {
		return nil
	}
	class := val.HeaderOf().Class
	if class == 0 {
		return fmt.Errorf("object %v has nil class pointer: %w", val, ErrHeapValidationFailed)
	}
	if class == val {
		// The meta-meta-class is deliberately self-referential.
		return nil
	}
	if _, ok := class.Obj().(*Class); !ok {
		return fmt.Errorf("object %v's class pointer does not reference a Class: %w", val, ErrHeapValidationFailed)
	}
	return nil
}

func (v *heapValidator) checkStackChain(head Value) error {
	for head != 0 {
		if err := v.checkValue(head); err != nil {
			return err
		}
		s, ok := head.Obj().(*Stack)
		if !ok {
			return fmt.Errorf("stack chain entry %v is not a Stack: %w", head, ErrHeapValidationFailed)
		}
		for _, slot := range s.Slots {
			if err := v.checkValue(slot); err != nil {
				return err
			}
		}
		head = s.Next
	}
	return nil
}
