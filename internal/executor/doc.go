// Package executor runs compiled statement trees against a scope.
//
// Every statement returns a value and may leave a flow status on the scope.
// Sequences stop at the first statement that leaves a status other than
// Normal. Loops consume Break and Continue, action calls consume Return,
// and the lifecycle of an agent consumes Die and Dispose.
//
// Warnings raised while a statement executes are reported through the
// scope and execution continues with the next statement. Fatal errors
// unwind to the caller, which is the agent step of a simulation unit.
package executor
