// Package buffer provides the audio memory manager used by the graph: an
// [Allocator] handing out aligned, explicitly owned memory blocks, and a
// planar multichannel [Buffer] built on top of it.
//
// Blocks are never moved or compacted while referenced. Whoever allocates a
// block owns it and must release it through [Allocator.Free]; freeing twice
// is reported instead of corrupting the free lists.
package buffer
