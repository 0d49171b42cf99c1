package vm

import "testing"

func newTestFunction(t *testing.T, p *Program, numInstrs int) (Value, *Function) {
	t.Helper()
	fnClass := p.classFor("CompiledMethod", p.ClassClass)
	code := make([]byte, numInstrs)
	for i := range code {
		code[i] = byte(OpReturnTop)
	}
	fn := NewFunction(fnClass, 0, nil, code)
	return p.allocateOld(fn), fn
}

// TestShouldBreakFiresAtInstalledBreakpoint checks the basic case: a
// breakpoint installed at bcp fires when ShouldBreak is asked about that
// exact pointer, and nowhere else.
func TestShouldBreakFiresAtInstalledBreakpoint(t *testing.T) {
	p := newTestProgram()
	fnVal, fn := newTestFunction(t, p, 4)

	bcp := fn.BytecodePointerAt(1)
	other := fn.BytecodePointerAt(2)
	p.Breakpoints().SetBreakpoint(bcp, fnVal, 1, false)

	if !p.Breakpoints().ShouldBreak(bcp, 0) {
		t.Error("breakpoint did not fire at its own bytecode pointer")
	}
	if p.Breakpoints().ShouldBreak(other, 0) {
		t.Error("breakpoint fired at an unrelated bytecode pointer")
	}
}

// TestOneShotBreakpointIsConsumedAfterFiring checks that a one-shot
// breakpoint fires exactly once and is gone afterward.
func TestOneShotBreakpointIsConsumedAfterFiring(t *testing.T) {
	p := newTestProgram()
	fnVal, fn := newTestFunction(t, p, 4)
	bcp := fn.BytecodePointerAt(1)

	p.Breakpoints().SetBreakpoint(bcp, fnVal, 1, true)

	if !p.Breakpoints().ShouldBreak(bcp, 0) {
		t.Fatal("one-shot breakpoint did not fire the first time")
	}
	if p.Breakpoints().ShouldBreak(bcp, 0) {
		t.Error("one-shot breakpoint fired a second time after being consumed")
	}
	if p.Breakpoints().Count() != 0 {
		t.Errorf("Count() after consumption = %d, want 0", p.Breakpoints().Count())
	}
}

// TestConditionalBreakpointRespectsStackHeight checks step-over
// semantics: a conditional breakpoint only fires when the caller's
// reported stack height matches the one it was set with.
func TestConditionalBreakpointRespectsStackHeight(t *testing.T) {
	p := newTestProgram()
	fnVal, fn := newTestFunction(t, p, 4)
	bcp := fn.BytecodePointerAt(1)

	p.Breakpoints().SetConditionalBreakpoint(bcp, fnVal, 1, 0, 3)

	if p.Breakpoints().ShouldBreak(bcp, 5) {
		t.Error("conditional breakpoint fired at the wrong stack height")
	}
	if !p.Breakpoints().ShouldBreak(bcp, 3) {
		t.Error("conditional breakpoint did not fire at the expected stack height")
	}
}

// TestSteppingFiresWithNoBreakpointInstalled checks that single-step
// mode reports true even at a bytecode pointer with no breakpoint of
// its own.
func TestSteppingFiresWithNoBreakpointInstalled(t *testing.T) {
	p := newTestProgram()
	_, fn := newTestFunction(t, p, 4)
	bcp := fn.BytecodePointerAt(2)

	if p.Breakpoints().ShouldBreak(bcp, 0) {
		t.Fatal("breakpoint fired with stepping off and nothing installed")
	}
	p.Breakpoints().SetStepping(true)
	if !p.Breakpoints().ShouldBreak(bcp, 0) {
		t.Error("stepping did not fire at an instruction with no installed breakpoint")
	}
}

// TestDeleteBreakpointRemovesByID checks that DeleteBreakpoint finds and
// removes the breakpoint matching the given id, regardless of its
// current key, and reports false for an id that no longer exists.
func TestDeleteBreakpointRemovesByID(t *testing.T) {
	p := newTestProgram()
	fnVal, fn := newTestFunction(t, p, 4)
	bcp := fn.BytecodePointerAt(1)
	id := p.Breakpoints().SetBreakpoint(bcp, fnVal, 1, false)

	if !p.Breakpoints().DeleteBreakpoint(id) {
		t.Fatal("DeleteBreakpoint reported false for an id that exists")
	}
	if p.Breakpoints().ShouldBreak(bcp, 0) {
		t.Error("breakpoint still fires after being deleted")
	}
	if p.Breakpoints().DeleteBreakpoint(id) {
		t.Error("DeleteBreakpoint reported true for an already-deleted id")
	}
}

// TestUpdateBreakpointsRekeysAfterFunctionMoves checks that
// UpdateBreakpoints recomputes each breakpoint's key from its
// (Function, Offset) pair, so a breakpoint set against a function that
// later gets a new address still fires at the new address and not the
// old one.
func TestUpdateBreakpointsRekeysAfterFunctionMoves(t *testing.T) {
	p := newTestProgram()
	fnVal, fn := newTestFunction(t, p, 4)
	oldBCP := fn.BytecodePointerAt(1)
	p.Breakpoints().SetBreakpoint(oldBCP, fnVal, 1, false)

	moved := NewFunction(fn.Class, fn.Arity, fn.Literals, append([]byte(nil), fn.Bytecode...))
	movedVal := ValueOf(moved)

	for _, bp := range p.breakpoints.byPointer {
		bp.Function = movedVal
	}
	p.Breakpoints().UpdateBreakpoints()

	newBCP := moved.BytecodePointerAt(1)
	if !p.Breakpoints().ShouldBreak(newBCP, 0) {
		t.Error("breakpoint did not fire at the rekeyed bytecode pointer")
	}
	if p.Breakpoints().ShouldBreak(oldBCP, 0) {
		t.Error("breakpoint still fires at the stale, pre-move bytecode pointer")
	}
}

// TestVisitPointersRewritesFunctionAndCoroutine checks that
// VisitPointers rewrites both a breakpoint's Function and, when set, its
// Coroutine field through the supplied visitor.
func TestVisitPointersRewritesFunctionAndCoroutine(t *testing.T) {
	p := newTestProgram()
	fnVal, fn := newTestFunction(t, p, 4)
	bcp := fn.BytecodePointerAt(1)
	coroutine := FromSmallInt(7)
	p.Breakpoints().SetConditionalBreakpoint(bcp, fnVal, 1, coroutine, 2)

	replacementFn := ValueOf(NewFunction(fn.Class, fn.Arity, fn.Literals, fn.Bytecode))
	replacementCoroutine := FromSmallInt(9)
	p.Breakpoints().VisitPointers(VisitBlockFunc(func(v Value) Value {
		switch v {
		case fnVal:
			return replacementFn
		case coroutine:
			return replacementCoroutine
		default:
			return v
		}
	}))

	var bp *Breakpoint
	for _, b := range p.breakpoints.byPointer {
		bp = b
	}
	if bp.Function != replacementFn {
		t.Errorf("Function after VisitPointers = %v, want %v", bp.Function, replacementFn)
	}
	if bp.Coroutine != replacementCoroutine {
		t.Errorf("Coroutine after VisitPointers = %v, want %v", bp.Coroutine, replacementCoroutine)
	}
}
