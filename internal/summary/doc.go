// Package summary renders one line per part and group describing what each
// viewer's update did, as JSON, as prose, or both.
package summary
