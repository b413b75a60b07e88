package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultAssistantID owns conversations whose assistant is unknown.
var DefaultAssistantID = uuid.MustParse("0950e2dc-9bd5-4801-afa3-aa887aa36b4e")

// ConversationRecord is one chat conversation.
type ConversationRecord struct {
	ID          uuid.UUID     `json:"id"`
	Title       string        `json:"title"`
	IsPinned    bool          `json:"isPinned"`
	IsDeleted   bool          `json:"isDeleted"`
	Nodes       []MessageNode `json:"nodes"`
	AssistantID uuid.UUID     `json:"assistantId"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// MessageNode is one position in the conversation tree. Messages are kept
// as raw JSON; the sync engine never looks inside them.
type MessageNode struct {
	ID          string            `json:"id,omitempty"`
	Messages    []json.RawMessage `json:"messages"`
	SelectIndex int               `json:"selectIndex"`
}
