// Package types defines the item record, user actions, configuration, and
// standard error types for the basket shopping list.
package types
