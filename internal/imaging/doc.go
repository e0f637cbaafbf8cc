// Package imaging provides the page raster type and the image operations the
// detection pipeline builds on.
//
// A Page is the unit every document reader produces: a dense 3-channel
// 8-bit raster. The package converts pages to and from image.Image, resizes
// them with a choice of interpolation filters, crops regions for recognition,
// computes edge-density maps and draws detection overlays.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward. Pages always start at the
// origin; FromImage rebases images whose bounds do not.
//
// # Interpolation
//
// Resizing is backed by github.com/disintegration/imaging:
//   - bilinear: imaging.Linear
//   - nearest: imaging.NearestNeighbor
//   - bicubic: imaging.CatmullRom
//   - area: imaging.Box
//   - lanczos3: imaging.Lanczos
//   - lanczos5: a 5-lobe Lanczos kernel defined here
//
// # Thread Safety
//
// All functions are stateless and safe to call concurrently on different
// inputs. Pages are treated as immutable.
package imaging
