// Package importer reads provider configurations out of third-party chat
// app exports.
package importer

import (
	"errors"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/google/uuid"

	"github.com/starford/chatsync/internal/models"
)

// ErrNotObject is returned when the export is not a JSON object.
var ErrNotObject = errors.New("importer: export is not a JSON object")

// family describes one provider block of a Chatbox export.
type family struct {
	key         string
	name        string
	typ         string
	defaultHost string
	version     string
	withModels  bool
}

var chatboxFamilies = []family{
	{key: "openai", name: "OpenAI", typ: models.ProviderOpenAI, defaultHost: "https://api.openai.com", version: "/v1", withModels: true},
	{key: "claude", name: "Claude", typ: models.ProviderClaude, defaultHost: "https://api.anthropic.com", version: "/v1"},
	{key: "gemini", name: "Gemini", typ: models.ProviderGoogle, defaultHost: "https://generativelanguage.googleapis.com", version: "/v1beta"},
}

// GetString returns the string at a dot-separated path, such as
// "settings.providers.openai.apiKey". The second result is false when any
// segment is missing or the leaf is not a string.
func GetString(data []byte, path string) (string, bool) {
	s, err := jsonparser.GetString(data, splitPath(path)...)
	if err != nil {
		return "", false
	}
	return s, true
}

// getRaw returns the raw value at path and its type.
func getRaw(data []byte, path string) ([]byte, jsonparser.ValueType) {
	v, typ, _, err := jsonparser.Get(data, splitPath(path)...)
	if err != nil {
		return nil, jsonparser.NotExist
	}
	return v, typ
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// ParseChatbox extracts providers from a Chatbox export. Families with a
// blank API key are skipped; any missing or malformed subtree yields no
// provider for that family.
func ParseChatbox(data []byte) ([]models.ProviderConfig, error) {
	if _, typ, _, err := jsonparser.Get(data); err != nil || typ != jsonparser.Object {
		return nil, ErrNotObject
	}

	out := []models.ProviderConfig{}
	for _, f := range chatboxFamilies {
		block, typ := getRaw(data, "settings.providers."+f.key)
		if typ != jsonparser.Object {
			continue
		}
		key, _ := GetString(block, "apiKey")
		if strings.TrimSpace(key) == "" {
			continue
		}
		host, ok := GetString(block, "apiHost")
		if !ok || strings.TrimSpace(host) == "" {
			host = f.defaultHost
		}
		p := models.ProviderConfig{
			ID:      uuid.NewString(),
			Type:    f.typ,
			Name:    f.name,
			BaseURL: strings.TrimRight(strings.TrimSpace(host), "/") + f.version,
			APIKey:  key,
			Enabled: true,
			Models:  []models.Model{},
		}
		if f.withModels {
			p.Models = parseModels(block)
		}
		out = append(out, p)
	}
	return out, nil
}

func parseModels(block []byte) []models.Model {
	out := []models.Model{}
	list, typ := getRaw(block, "models")
	if typ != jsonparser.Array {
		return out
	}
	_, _ = jsonparser.ArrayEach(list, func(value []byte, dataType jsonparser.ValueType, _ int, err error) {
		if err != nil || dataType != jsonparser.Object {
			return
		}
		id, _ := GetString(value, "modelId")
		m := models.Model{
			ModelID:         id,
			DisplayName:     id,
			InputModalities: []models.Modality{models.ModalityText},
			Abilities:       []models.Ability{},
		}
		caps, typ := getRaw(value, "capabilities")
		if typ == jsonparser.Array {
			_, _ = jsonparser.ArrayEach(caps, func(c []byte, ct jsonparser.ValueType, _ int, _ error) {
				if ct != jsonparser.String {
					return
				}
				switch string(c) {
				case "vision":
					m.InputModalities = append(m.InputModalities, models.ModalityImage)
				case "tool_use":
					m.Abilities = append(m.Abilities, models.AbilityTool)
				case "reasoning":
					m.Abilities = append(m.Abilities, models.AbilityReasoning)
				}
			})
		}
		out = append(out, m)
	})
	return out
}

// Prepend returns doc with providers placed ahead of the existing ones.
// No de-duplication by name is done.
func Prepend(doc models.SettingsDocument, providers []models.ProviderConfig) models.SettingsDocument {
	out := doc.Clone()
	merged := make([]models.ProviderConfig, 0, len(providers)+len(doc.Providers))
	merged = append(merged, providers...)
	merged = append(merged, out.Providers...)
	out.Providers = merged
	return out
}
