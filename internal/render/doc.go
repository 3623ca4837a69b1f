// Package render turns buffered CSI records into views: a numeric matrix,
// per-subcarrier statistics, an interactive 3D surface (HTML) and a static
// heatmap (PNG). Latest holds the most recent buffer snapshot for the HTTP
// layer to draw from.
package render
