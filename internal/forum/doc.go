// Package forum is a small post board served through the request pipeline.
//
// Queries are cached per post and per page, and every command invalidates
// the entries it makes stale, so the package exercises each pipeline stage
// end to end.
package forum
