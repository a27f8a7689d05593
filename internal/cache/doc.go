// Package cache implements the directory-backed key-value store. Every live key
// is one regular file under the store directory: the file body is the raw value
// and the file modification time is the expiry deadline (epoch zero means the
// entry never expires). An optional in-process Overlay answers reads before the
// filesystem is touched, but the directory stays authoritative, so a fresh
// store pointed at the same directory observes exactly the same entries.
// Path derivation is deterministic and salt-free across directories, which lets
// an independent process (for example a remote mirror) compute the same
// filenames from the same keys.
package cache
