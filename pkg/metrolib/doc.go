// Package metrolib holds the building blocks of a measurement run:
// scenario parsing, the operation registry, pause resolution, the
// resumption record and the CSV execution log and trace.
//
// Every timestamp produced by this package is relative to a run's
// TimeReference and expressed in milliseconds; files store seconds.
package metrolib
