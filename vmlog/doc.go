// Package vmlog provides the process-wide structured logger used by every
// runtime package. It defaults to a no-op logger; embedders call SetLogger
// to install a real one.
package vmlog
