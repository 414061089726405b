// Package component defines the lifecycle contract (Start, Stop, Health)
// that host applications use to manage httpkit clients alongside their
// other resources.
package component
