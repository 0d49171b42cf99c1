// Package vm implements the program image and generational heap core of
// a small bytecoded virtual machine for constrained devices.
//
// This package contains:
//   - Tagged-pointer value representation and the heap object model
//   - A two-space generational heap (semi-space scavenger, old-space
//     mark-sweep/mark-compact)
//   - The program image: classes, functions, the dispatch table, and the
//     singleton roots an interpreter needs
//   - Program GC: stack cooking/uncooking and breakpoint rekeying around
//     a moving collection of the program image
//   - Debug info: a breakpoint table keyed by bytecode address
//
// The bytecode interpreter loop, snapshot wire format, and process
// scheduler are external collaborators; this package only defines the
// interfaces (FrameWalker, Process, Port) it needs them to satisfy.
package vm
