// Package internal collects small helpers shared across the engine's
// packages: panic-on-error wrappers for little-endian binary reads, a
// pooled byte buffer, plain file helpers, and the k-way merge core
// (MergeSources) shared by the external sorter and the sorted merger.
package internal
