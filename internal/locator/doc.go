// Package locator maps feedback anchors to byte ranges in a document body and
// keeps those ranges valid as other edits land.
package locator
