// Package textutil provides small text helpers: filename sanitization for
// uploaded artifacts and a bounded tail buffer for subprocess diagnostics.
package textutil
