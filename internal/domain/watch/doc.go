// Package watch observes session workspaces for file changes.
//
// The Hub owns one recursive fsnotify watcher per active session. Raw
// change events pass through the relevance filter; noise (dependency
// caches, VCS internals, test files, dotfiles, OS metadata) is dropped
// before any rebuild timer is touched, and relevant changes are handed to
// the rebuild scheduler.
package watch
