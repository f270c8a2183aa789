// Package fetcher downloads llms.txt style documentation over HTTP.
//
// Only markdown and plain-text responses are accepted. Network errors, 429
// and 5xx responses are reported as *TransientError and retried with
// exponential backoff; a 404 is reported as ErrNotFound and never retried.
package fetcher
