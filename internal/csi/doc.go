// Package csi owns the record types shared by the CSI ingest layers.
//
// Responsibilities: the normalized telemetry record and the hardware
// source address carried by binary frames. Parsing lives in parse/,
// windowing in buffer/, transport loops in network/ and pipeline/.
//
// Dependency rule: csi has no dependencies on its sub-packages.
package csi
