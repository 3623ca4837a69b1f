// Package parse turns raw transport chunks into CSI records.
//
// Two wire formats are handled: colon-delimited text packets read line by
// line from the serial monitor node ("tag:timestamp:a0,a1,..."), and fixed
// 134-byte binary frames received over UDP. Both paths are pure and
// synchronous; malformed text packets are reported as discard results rather
// than errors so callers can count why input was dropped.
package parse
