package vm

// ---------------------------------------------------------------------------
// Stack chaining and cooking (Component H steps 4/5/7)
// ---------------------------------------------------------------------------
//
// Program GC needs to find every live stack to scavenge program
// pointers reachable from them, without this package knowing anything
// about how a scheduler tracks its processes beyond the Process
// interface. chainStacks links every process's current stack into a
// singly linked list through Stack.Next so a single traversal starting
// at the head reaches all of them; cookStacks/uncookStacks convert each
// stack's live instruction pointer to and from a (function, offset)
// pair so that a program GC which moves Function objects does not
// invalidate every process's program counter out from under it.

// chainStacks links every process's current stack through Stack.Next,
// in process list order, and returns the head of the chain (or the
// zero Value if there are no processes). The sentinel terminating the
// chain is the zero Value, which can never itself be a Stack pointer.
func chainStacks(processes []Process) Value {
	var head Value
	var prev *Stack
	for _, proc := range processes {
		s := proc.Stack()
		if s == 0 {
			continue
		}
		stackObj := s.Obj().(*Stack)
		if prev == nil {
			head = s
		} else {
			prev.Next = s
		}
		prev = stackObj
	}
	if prev != nil {
		prev.Next = 0
	}
	return head
}

// unchainStacks clears every Stack.Next field reachable from head,
// leaving no trace of the chain built for one program GC cycle.
func unchainStacks(head Value) {
	for head != 0 {
		s := head.Obj().(*Stack)
		next := s.Next
		s.Next = 0
		head = next
	}
}

// cookedFrame is a stack's instruction pointer re-expressed as a
// (function, offset) pair -- the "out-of-band delta array" the original
// implementation keeps instead of patching the interior pointer in
// place, which this Go representation doesn't have an interior pointer
// to patch anyway; see DESIGN.md for why the two converge on the same
// observable result.
type cookedFrame struct {
	function Value
	offset   int
}

// cookStacks captures each process's current bytecode pointer as a
// (function, offset) pair via walker, so that none of them still
// depend on a raw pointer into a Function that Program GC might move
// during the collection phases that follow.
func cookStacks(processes []Process, walker FrameWalker) map[Value]cookedFrame {
	cooked := make(map[Value]cookedFrame, len(processes))
	for _, proc := range processes {
		stack := proc.Stack()
		if stack == 0 {
			continue
		}
		bcp := walker.ByteCodePointer(stack)
		if bcp == nil {
			continue
		}
		fn, offset, ok := walker.FunctionFromByteCodePointer(bcp)
		if !ok {
			continue
		}
		cooked[stack] = cookedFrame{function: fn, offset: offset}
	}
	return cooked
}

// uncookStacks reverses cookStacks: once program space has been
// scavenged (and every cookedFrame.function pointer forwarded to its
// new location by that same scavenge, since cookedFrame values were
// registered as roots), it recomputes each stack's absolute bytecode
// pointer from the possibly-relocated function and installs it via
// walker.
func uncookStacks(processes []Process, walker FrameWalker, cooked map[Value]cookedFrame) {
	for _, proc := range processes {
		stack := proc.Stack()
		frame, ok := cooked[stack]
		if !ok {
			continue
		}
		bcp := frame.function.Obj().(*Function).BytecodePointerAt(frame.offset)
		walker.SetByteCodePointer(stack, bcp)
	}
}

// visitCookedFrames rewrites every cookedFrame's function pointer
// through vis, so program space scavenging sees cooked stacks' target
// functions as roots even though nothing else in program space still
// points at them directly until uncookStacks runs.
func visitCookedFrames(cooked map[Value]cookedFrame, vis PointerVisitor) {
	for stack, frame := range cooked {
		frame.function = vis.VisitSlot(frame.function)
		cooked[stack] = frame
	}
}
