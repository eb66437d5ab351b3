// Package script runs robot programs written in Lua.
//
// Each execution gets a fresh sandboxed GopherLua state: only the base,
// table, string and math libraries are loaded, file and code-loading globals
// are removed, and the VM stops after a fixed number of opcodes or when the
// caller's context is cancelled. The robot's instructions and sensors are
// bound as globals, so a Lua program reads like its Java counterpart:
//
//	while frontIsClear() do
//	  putBeeper()
//	  move()
//	end
//
// Programs are listed in a manifest.yaml next to the scripts:
//
//	programs:
//	  - name: tester
//	    file: tester.lua
//	    kind: karel
//	    world: test
package script
