// Package detection converts text probability maps into scored text boxes.
//
// A detection model emits, for every page, a map giving the probability that
// each pixel belongs to text. The PostProcessor turns such a map into a list
// of boxes:
//
//  1. Binarize: a pixel is foreground when its probability is strictly
//     greater than BinThresh.
//  2. Open: 3x3 erosion then 3x3 dilation to remove specks and thin bridges.
//  3. FindContours: outer boundary of every 8-connected foreground region,
//     in raster order of the region's first pixel.
//  4. Score: mean probability over the region's bounding rectangle.
//  5. Filter: drop regions whose smaller side is below MinSizeBox or whose
//     score is below BoxThresh, then convert survivors with a Geometry.
//
// # Geometry
//
// The conversion from region to emitted shape is pluggable. StraightBoxes
// emits axis-aligned rectangles, RotatedBoxes minimum-area rotated
// rectangles and PolygonBoxes simplified outlines. Each box renders as a
// row of geometry coordinates followed by its score (see Box.Row).
//
// # Coordinate System
//
// Coordinates are in probability-map pixels with (0, 0) at the top-left,
// X rightward and Y downward. Bounds are inclusive pixel indices while
// rectangle corners lie on pixel edges, so a box covering columns 2 to 5 runs
// from x=2 to x=6. Use Box.Scale to map boxes onto the original page.
//
// # Determinism
//
// The pipeline has no randomness: the same map always yields the same
// boxes in the same order.
package detection
