// Package compiler defines the contract between the build orchestrator and
// external bundlers.
//
// The orchestrator never depends on a concrete bundler: it receives Compiler
// implementations at construction. Two production implementations shell out
// to external CLIs (Web for browser bundles, Mobile for per-platform mobile
// bundles); tests substitute in-process fakes.
package compiler
