// Package server implements the MCP (Model Context Protocol) server for text
// detection.
//
// The server communicates over stdio using JSON-RPC 2.0, one request per
// line on stdin and one response per line on stdout. Supported methods are
// initialize, tools/list, tools/call and ping.
//
// # Available Tools
//
//   - document_info: kind, format, size and page count of a file
//   - document_layout: text, word boxes and image boxes of PDF pages
//   - text_detect: scored text boxes for every page of a document
//   - text_recognize: text_detect followed by Tesseract on every box
//   - detection_overlay: one page with its boxes drawn on it, as PNG
//
// Documents are given by path (images or PDFs, told apart by content) or by
// URL (web pages, rendered through MuPDF). Box coordinates are in the pixel
// space of the rendered page.
//
// # Requests
//
// Each tool call gets a fresh request id. It is attached to every log line
// of the call and returned to the client under _meta.request_id, or in the
// error data when the call fails.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with code
// -32000. The data object holds error_code (for example FILE_NOT_FOUND or
// INVALID_INPUT_SHAPE) when the failure has one, the message and the
// request id.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	srv, err := server.New(cfg, server.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	return srv.Run(ctx)
package server
