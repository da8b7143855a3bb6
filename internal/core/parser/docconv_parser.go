package parser

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"code.sajari.com/docconv"

	"github.com/planora-ai/planora/internal/core"
	"github.com/planora-ai/planora/internal/core/retry"
)

// DocconvParser converts uploaded files to plain text with docconv. PDF
// conversion of large scanned documents is flaky under load, so every call
// goes through the retry policy.
type DocconvParser struct {
	policy *retry.Policy
}

func NewDocconvParser(policy *retry.Policy) *DocconvParser {
	return &DocconvParser{policy: policy}
}

var _ core.DocumentParser = (*DocconvParser)(nil)

func (p *DocconvParser) Parse(ctx context.Context, data []byte, contentType string) (*core.ParsedDocument, error) {
	var res *docconv.Response
	err := p.policy.Do(ctx, func(_ context.Context) error {
		var convErr error
		res, convErr = docconv.Convert(bytes.NewReader(data), contentType, false)
		if convErr != nil {
			return fmt.Errorf("docconv %s: %w", contentType, convErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(res.Body)
	if text == "" {
		return nil, fmt.Errorf("docconv %s: no extractable text", contentType)
	}

	out := &core.ParsedDocument{
		Text:     text,
		Metadata: res.Meta,
	}
	if res.Meta != nil {
		if n, err := strconv.Atoi(res.Meta["PageCount"]); err == nil {
			out.Pages = n
		}
	}
	return out, nil
}
