// Package aggregator implements the ordering/merge engine for parallel test
// runs. Each worker gets a Collector that buffers its lifecycle events;
// captured stdout/stderr lands in a shared CaptureBuffer. When a worker
// signals completion its events and output are merged into one
// deterministically ordered sequence and replayed into the single shared
// reporter. A Barrier detects when every expected worker has replayed and
// finalizes the run with the accumulated failure count.
//
// Nothing for a worker reaches the reporter before that worker completes,
// with one exception: retry notifications are forwarded live so downstream
// consumers get immediate retry visibility.
package aggregator
