// Package dispatch runs upload jobs on a fixed pool of workers.
//
// Submit fans a job out into one work item per file and pushes the items
// onto a bounded queue. When the queue is full Submit blocks, which in turn
// stops the input loop from reading, so a flooding host is throttled
// instead of growing memory.
//
// Per file item:
//   - status Processing
//   - per-target rate limiter wait (shared global bucket first)
//   - status Uploading
//   - adapter Upload wrapped in transient retry with backoff
//   - result + status Done, or status Failed/Timeout + error
//
// Every item runs under its own deadline (dispatch.file_timeout). A stuck
// remote call ends in a Timeout status and the worker moves on.
//
// Batches:
//   - Each job carries a countdown of outstanding items
//   - The worker that finishes the last item emits batch_complete
//   - A job with no files gets batch_complete straight away
//   - A job whose target cannot be resolved fails every file at submit time
//
// Control actions (create_gallery, finalize_gallery, verify, list_galleries)
// are a single item with no file. They emit one result, data or error
// event followed by batch_complete.
//
// A panic inside an adapter is recovered at the worker boundary and turned
// into an error event for that file only.
package dispatch
