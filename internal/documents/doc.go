// Package documents reads document sources into page rasters.
//
// Three sources are supported:
//
//   - Images (PNG, JPEG, GIF, BMP, TIFF, WebP), decoded with
//     github.com/disintegration/imaging and rotated per their EXIF
//     orientation. One image is one page.
//   - PDFs, opened and rasterized with MuPDF through
//     github.com/gen2brain/go-fitz.
//   - Web pages, fetched over HTTP, cleaned with golang.org/x/net/html and
//     laid out by MuPDF's HTML engine.
//
// Inputs are given as a File holding either a path or a byte buffer.
// ReadPages picks the reader from the content and ReadURLPages renders a
// web page; WithPages limits either to the pages asked for.
//
// PDFs also expose their embedded content without rasterizing: Words reads
// the text layer with word positions and Artefacts the boxes of raster
// images, both in points from the top-left corner.
//
// Failures are reported with the error kinds of internal/errors:
// FILE_NOT_FOUND for missing paths, UNDECODABLE_CONTENT for data no decoder
// accepts and UNSUPPORTED_TYPE for inputs of the wrong kind.
package documents
