// Package handle provides generation-checked references into a dense slot
// table.
//
// A [Handle] pairs a slot index with the generation the slot had when the
// handle was issued. Freeing a slot bumps its generation, so every handle
// issued before the free stops validating even after the slot is reused.
// This gives use-after-free detection for graph entities without relying on
// the garbage collector to keep stale objects reachable.
package handle
