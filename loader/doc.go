// Package loader resolves sink references to sink definitions.
//
// Go has no runtime code loading, so handler code is registered ahead of
// time in a Registry. The registry groups Definitions into Modules and
// addresses them with dotted qualified names, the module name followed by
// the member name:
//
//	reg := loader.NewRegistry()
//	reg.Register(&loader.Definition{
//	    Module: "habitat.sinks", Member: "LogSink",
//	    Discipline: sink.Inline, Factory: newLogSink,
//	})
//	def, err := reg.Resolve("habitat.sinks.LogSink")
//
// A reference is either a qualified name or a Definition value. Resolution
// errors carry a kind from the errors package:
//
//   - empty name or empty dotted component: value kind
//   - a name that is a module, not a member: type kind
//   - unknown module: import kind
//   - unknown member of a known module: attribute kind
//   - any other reference type: type kind
//   - a definition without a factory or with an unknown discipline:
//     value kind
//
// Redefine swaps the definition stored under a name. Definitions already
// resolved are unaffected; resolving the old definition again with
// ForceReload returns the new one. This is how the router reloads a sink
// with new code under the same name.
//
// Module is an interface so that other sources of definitions can be
// mounted alongside the built-in StaticModule.
package loader
