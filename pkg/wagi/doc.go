// Package wagi wires the module-source resolver, configuration loader,
// Wasm runner, CGI adapter, sub-route discovery, and routing table
// (internal/*) into a single runnable HTTP server: a WebAssembly Gateway
// Interface front-end that dispatches requests to sandboxed Wasm modules
// via CGI 1.1 conventions.
package wagi
