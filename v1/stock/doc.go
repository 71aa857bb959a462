// Package stock tracks per-product inventory counters. Decrements are
// all-or-nothing per product, and the batch helpers walk products in a fixed
// order so two overlapping orders cannot interleave into a partial state on
// the same key.
package stock
