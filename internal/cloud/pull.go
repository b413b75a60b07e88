package cloud

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/starford/chatsync/internal/apperr"
	"github.com/starford/chatsync/internal/models"
)

// FetchConversations returns the remote conversation list. Elements that
// cannot be decoded are kept as zero records so that callers still see
// one entry per remote element.
func (c *Client) FetchConversations(ctx context.Context, token string) ([]ConversationDTO, error) {
	op := "GET " + PathConversations
	body, err := c.do(ctx, http.MethodGet, PathConversations, token, nil)
	if err != nil {
		return nil, err
	}
	data, err := unwrap(op, body)
	if err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperr.New(op, apperr.ErrDecode, err)
	}
	out := make([]ConversationDTO, len(raw))
	for i, elem := range raw {
		var dto ConversationDTO
		if err := json.Unmarshal(elem, &dto); err != nil {
			continue
		}
		out[i] = dto
	}
	return out, nil
}

// FetchAll returns providers, assistants and settings. The returned error
// covers the request and envelope; section-level problems are reported in
// the Bundle.
func (c *Client) FetchAll(ctx context.Context, token string) (*Bundle, error) {
	op := "GET " + PathAll
	body, err := c.do(ctx, http.MethodGet, PathAll, token, nil)
	if err != nil {
		return nil, err
	}
	data, err := unwrap(op, body)
	if err != nil {
		return nil, err
	}
	var payload allPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, apperr.New(op, apperr.ErrDecode, err)
	}

	b := &Bundle{}
	b.Providers, b.ProvidersErr = decodeEntries(op+" providers", payload.Providers, decodeProvider)
	b.Assistants, b.AssistantsErr = decodeEntries(op+" assistants", payload.Assistants, decodeAssistant)
	if isNull(payload.Settings) {
		b.SettingsErr = apperr.Decodef(op+" settings", "section missing")
	} else {
		var doc models.SettingsDocument
		if err := json.Unmarshal(payload.Settings, &doc); err != nil {
			b.SettingsErr = apperr.New(op+" settings", apperr.ErrDecode, err)
		} else {
			b.Settings = &doc
		}
	}
	return b, nil
}

// FetchPublicProvider returns the shared provider offer.
func (c *Client) FetchPublicProvider(ctx context.Context, token string) (*PublicProvider, error) {
	op := "GET " + PathPublicProvider
	body, err := c.do(ctx, http.MethodGet, PathPublicProvider, token, nil)
	if err != nil {
		return nil, err
	}
	data, err := unwrap(op, body)
	if err != nil {
		return nil, err
	}
	var pp PublicProvider
	if err := json.Unmarshal(data, &pp); err != nil {
		return nil, apperr.New(op, apperr.ErrDecode, err)
	}
	return &pp, nil
}

// decodeEntries decodes a [{"config": ...}] section. Entries that fail
// decode are dropped; only a missing or non-array section is an error.
func decodeEntries[T any](op string, section json.RawMessage, decode func(json.RawMessage) (T, bool)) ([]T, error) {
	if isNull(section) {
		return nil, apperr.Decodef(op, "section missing")
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(section, &entries); err != nil {
		return nil, apperr.New(op, apperr.ErrDecode, err)
	}
	out := make([]T, 0, len(entries))
	for _, raw := range entries {
		var e configEntry
		if err := json.Unmarshal(raw, &e); err != nil || isNull(e.Config) {
			continue
		}
		if v, ok := decode(unquote(e.Config)); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func decodeProvider(raw json.RawMessage) (models.ProviderConfig, bool) {
	var p models.ProviderConfig
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, false
	}
	if p.Type == "" {
		p.Type = models.ProviderOpenAI
	}
	if p.Validate() != nil {
		return p, false
	}
	if p.Models == nil {
		p.Models = []models.Model{}
	}
	return p, true
}

func decodeAssistant(raw json.RawMessage) (models.AssistantConfig, bool) {
	var a models.AssistantConfig
	if err := json.Unmarshal(raw, &a); err != nil {
		return a, false
	}
	return a, strings.TrimSpace(a.ID) != ""
}

// unquote accepts a config stored as a JSON string holding JSON.
func unquote(raw json.RawMessage) json.RawMessage {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return json.RawMessage(s)
	}
	return raw
}
