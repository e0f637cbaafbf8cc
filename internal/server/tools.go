package server

import "github.com/ironsheep/textdet/internal/detection"

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// sourceProperties are accepted by every tool that reads pages.
func sourceProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path to an image (PNG, JPEG, GIF, BMP, TIFF, WebP) or PDF file",
		},
		"url": map[string]interface{}{
			"type":        "string",
			"description": "URL of a web page to render instead of a file",
		},
		"pages": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "integer"},
			"description": "0-based page indexes to process. Default: all pages",
		},
		"dpi": map[string]interface{}{
			"type":        "number",
			"description": "PDF and web page rendering resolution. Default from configuration (144)",
		},
	}
}

// detectProperties adds the post-processing overrides to sourceProperties.
func detectProperties() map[string]interface{} {
	props := sourceProperties()
	props["geometry"] = map[string]interface{}{
		"type":        "string",
		"enum":        detection.GeometryNames,
		"description": "Box shape: axis-aligned (straight), minimum-area rectangle (rotated) or simplified outline (polygon)",
	}
	props["bin_thresh"] = map[string]interface{}{
		"type":        "number",
		"description": "Probability a pixel must exceed to count as text (0-1)",
	}
	props["box_thresh"] = map[string]interface{}{
		"type":        "number",
		"description": "Minimum mean probability of a kept box (0-1)",
	}
	props["min_size_box"] = map[string]interface{}{
		"type":        "integer",
		"description": "Minimum box side in model input pixels",
	}
	return props
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	recognizeProps := detectProperties()
	recognizeProps["language"] = map[string]interface{}{
		"type":        "string",
		"description": "Tesseract language code, e.g. 'eng' or 'deu+fra'. Default from configuration",
	}

	overlayProps := detectProperties()
	delete(overlayProps, "pages")
	overlayProps["page"] = map[string]interface{}{
		"type":        "integer",
		"description": "0-based page index to draw. Default 0",
		"default":     0,
	}
	overlayProps["color"] = map[string]interface{}{
		"type":        "string",
		"description": "Outline colour as #RRGGBB. Default: a distinct colour per box",
	}
	overlayProps["thickness"] = map[string]interface{}{
		"type":        "integer",
		"description": "Outline width in pixels",
	}
	overlayProps["show_labels"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Label each box with its score",
	}
	overlayProps["output_path"] = map[string]interface{}{
		"type":        "string",
		"description": "Optional path to also save the annotated PNG",
	}

	return []Tool{
		{
			Name:        "document_info",
			Description: "Report the kind, format, size and page count of an image or PDF file without rendering it.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image or PDF file",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "document_layout",
			Description: "Read the embedded content of a PDF: the text of each page, its words with their boxes and the boxes of its raster images, all in points from the top-left corner.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the PDF file",
					},
					"pages": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "integer"},
						"description": "Zero-based page indices to read (default: all)",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "text_detect",
			Description: "Locate text regions on every page of a document. Returns scored boxes in page pixel coordinates.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": detectProperties(),
			},
		},
		{
			Name:        "text_recognize",
			Description: "Locate text regions and read each one with Tesseract. Returns the text of every box with its detection score and OCR confidence.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": recognizeProps,
			},
		},
		{
			Name:        "detection_overlay",
			Description: "Draw the detected text boxes of one page on top of it and return the result as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": overlayProps,
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
