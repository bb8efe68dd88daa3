// Package scheduler delivers durable one-shot and recurring wake requests.
//
// A single goroutine keeps pending requests in a min-heap ordered by
// trigger time and sleeps at most 60 seconds at a time so that wall-clock
// steps (NTP, DST, suspend) are noticed promptly. Requests are persisted
// in a Store before they enter the heap, so a restarted daemon reloads
// them; requests whose time passed while the daemon was down fire as soon
// as the scheduler starts.
//
// Every request has a key. Scheduling under a key that already has a
// pending request replaces it, which keeps at most one live request per
// run.
package scheduler
