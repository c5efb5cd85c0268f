// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the primary execution lifecycle: loading
// and compiling a model, then running one of its experiments either
// interactively or as a batch, decoupled from any specific entrypoint like
// a CLI or server.
package app
