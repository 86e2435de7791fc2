// Package services holds cross-cutting service concerns: the error taxonomy
// shared by every pipeline stage, its mapping onto HTTP responses, and request
// correlation context helpers.
package services
