// Package policy implements the pluggable policy engine: the outcome
// lattice, the evaluation context shared by all policy modules, the
// module registry, the configuration loader, and the engine that runs
// the ordered enabled set and resolves precedence.
//
// Policy modules are independent plug-ins. They receive all request
// data through a Context and return a Result; they never import each
// other. The engine is synchronous within one evaluation: one module
// completes before the next starts, and each module observes the
// outcomes of the modules that ran before it.
package policy
