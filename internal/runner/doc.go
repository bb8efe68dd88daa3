// Package runner executes parsed scenarios.
//
// Continuous drives a whole run on one goroutine while the process stays
// resident. Resumable executes one step per wake request and keeps no
// state between steps other than the ResumptionRecord carried by the
// request, so the process may exit between any two steps. Preparation
// performs the rig handshake and sync pulses that precede a run.
package runner
