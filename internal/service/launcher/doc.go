// Package launcher resolves a requested game variant to its entry point,
// establishes the runtime environment (runtime directory, display target,
// session bus address), escalates privilege once for hardware access and
// replaces the process image with the game interpreter.
//
// All host mutation goes through the System interface so the flow can be
// verified against a mutation-tracking fake.
package launcher
