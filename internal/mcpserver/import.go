package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const maxImportSize = 10 << 20 // 10 MB

var allowedImportMIME = map[string]bool{
	"application/json": true,
	"text/json":        true,
	"text/plain":       true,
}

func (s *Server) importChatbox(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data := []byte(content)
	if strings.HasPrefix(content, "data:") {
		if data, err = decodeDataURI(content); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if len(data) > maxImportSize {
		return mcp.NewToolResultError(fmt.Sprintf("export too large: %d bytes (max %d)", len(data), maxImportSize)), nil
	}
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return mcp.NewToolResultError("content does not look like a Chatbox export (expected a JSON object)"), nil
	}

	n, err := s.svc.ImportChatbox(ctx, data)
	if err != nil {
		return errorResult(err), nil
	}
	if n == 0 {
		return mcp.NewToolResultText("no providers with an API key found"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("imported %d providers", n)), nil
}

// decodeDataURI parses a data:[<mediatype>];base64,<data> URI carrying JSON.
func decodeDataURI(uri string) ([]byte, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return nil, fmt.Errorf("invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.Contains(meta, ";base64") {
		return nil, fmt.Errorf("only base64 data URIs are supported")
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	if mime != "" && !allowedImportMIME[mime] {
		return nil, fmt.Errorf("unsupported MIME type in data URI: %s", mime)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	return data, nil
}
