// Package library manages a directory of Karel world files.
//
// Worlds are stored as <id>.w in the world-file format read by
// engine.Load. The library parses each file once, caches it, and hands out
// copies, so a session can run programs on the world it receives without
// affecting anyone else. The default world is default.w when present, else
// the first world in the directory, else an empty 10x10 world.
package library
