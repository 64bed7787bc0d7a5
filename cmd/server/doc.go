// Command server runs the livebuild orchestration service: it manages
// isolated editing sessions, watches their workspaces, and rebuilds web and
// mobile bundles on change. Configuration comes from the environment; see
// internal/infrastructure/config.
package main
