package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	apperrors "github.com/ironsheep/textdet/internal/errors"
)

// maxHTMLBytes caps the size of a fetched web page.
const maxHTMLBytes = 16 << 20

// ReadHTML fetches a web page and returns its markup, normalized for
// rendering: active and embedded content is removed and the tree is
// re-serialized. A nil client uses http.DefaultClient.
func ReadHTML(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewUnsupportedTypeError(fmt.Sprintf("invalid URL %q: %v", url, err))
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, apperrors.NewFileNotFoundError(url, fmt.Errorf("HTTP %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("failed to fetch %s: HTTP %d", url, resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err == nil && mediaType != "text/html" && mediaType != "application/xhtml+xml" {
			return nil, apperrors.NewUnsupportedTypeError(fmt.Sprintf("%s is %s, not HTML", url, mediaType))
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTMLBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	return NormalizeHTML(body)
}

// stripped lists elements whose content cannot be laid out statically.
var stripped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Object:   true,
	atom.Embed:    true,
}

// NormalizeHTML parses markup, drops script, noscript, iframe, object and
// embed elements and renders the cleaned document.
func NormalizeHTML(markup []byte) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(markup))
	if err != nil {
		return nil, apperrors.NewUndecodableError("HTML document", err)
	}
	stripNodes(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("failed to render HTML: %w", err)
	}
	return buf.Bytes(), nil
}

func stripNodes(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && stripped[c.DataAtom] {
			n.RemoveChild(c)
		} else {
			stripNodes(c)
		}
		c = next
	}
}

// FromURL fetches a web page and opens it as a document laid out by MuPDF.
// The markup is staged in a temporary file removed on Close.
func FromURL(ctx context.Context, client *http.Client, url string) (*Document, error) {
	markup, err := ReadHTML(ctx, client, url)
	if err != nil {
		return nil, err
	}
	return OpenHTML(markup)
}

// OpenHTML opens normalized markup as a MuPDF document.
func OpenHTML(markup []byte) (*Document, error) {
	tmp, err := os.CreateTemp("", "textdet-*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to stage HTML: %w", err)
	}
	path := tmp.Name()
	if _, err := tmp.Write(markup); err != nil {
		tmp.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to stage HTML: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to stage HTML: %w", err)
	}

	d := &Document{path: path, cleanup: func() { os.Remove(path) }}
	doc, err := d.open()
	if err != nil {
		os.Remove(path)
		return nil, apperrors.NewUndecodableError("HTML document", err)
	}
	d.doc = doc
	return d, nil
}
