package core

import "context"

// ParsedDocument is the result of converting a raw file into plain text.
type ParsedDocument struct {
	Text     string
	Pages    int
	Metadata map[string]string
}

// DocumentParser converts raw file bytes into text. Conversion of large PDFs
// can take minutes, so implementations must honour ctx cancellation.
type DocumentParser interface {
	Parse(ctx context.Context, data []byte, contentType string) (*ParsedDocument, error)
}
