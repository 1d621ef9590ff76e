// Package types defines the annotation data model shared by the cveta2
// fetch, partition, merge and conversion layers, together with the
// canonical CSV column set and the standard errors.
package types
