// Package reconcile merges a remote conversation list into the local
// repository without touching records that already exist.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/chatsync/internal/cloud"
	"github.com/starford/chatsync/internal/models"
)

// FallbackTitle names restored conversations that arrive without a title.
const FallbackTitle = "Restored conversation"

// Inserter stores a new conversation.
type Inserter interface {
	Insert(ctx context.Context, rec models.ConversationRecord) error
}

// Result counts the outcome of one run. Inserted+Skipped always equals
// the number of remote records given.
type Result struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// Reconciler applies skip-existing merge semantics.
type Reconciler struct {
	repo   Inserter
	logger *slog.Logger
	now    func() time.Time
}

// New returns a Reconciler inserting into repo.
func New(repo Inserter, logger *slog.Logger) *Reconciler {
	return &Reconciler{repo: repo, logger: logger, now: time.Now}
}

// Reconcile walks remote in order. Deleted records and records whose id is
// in localIDs are skipped; the rest are materialized and inserted. A record
// that fails to parse or insert is skipped. localIDs is extended with every
// inserted id.
//
// If ctx is cancelled mid-run the remaining records are counted as skipped
// and ctx.Err() is returned.
func (r *Reconciler) Reconcile(ctx context.Context, remote []cloud.ConversationDTO, localIDs map[string]struct{}) (Result, error) {
	if localIDs == nil {
		localIDs = make(map[string]struct{})
	}
	var res Result
	for i, dto := range remote {
		if err := ctx.Err(); err != nil {
			res.Skipped += len(remote) - i
			return res, err
		}
		if dto.IsDeleted {
			res.Skipped++
			continue
		}
		if _, ok := localIDs[normalizeID(dto.ID)]; ok {
			res.Skipped++
			continue
		}

		rec, err := Materialize(dto, r.now())
		if err != nil {
			r.logger.Warn("reconcile: skip record", slog.String("id", dto.ID), slog.String("error", err.Error()))
			res.Skipped++
			continue
		}
		if err := r.repo.Insert(ctx, rec); err != nil {
			r.logger.Warn("reconcile: insert failed", slog.String("id", dto.ID), slog.String("error", err.Error()))
			res.Skipped++
			continue
		}
		localIDs[rec.ID.String()] = struct{}{}
		res.Inserted++
	}
	return res, nil
}

// Materialize builds a local record from a remote one. Only an
// unparseable id is an error; every other field has a default.
func Materialize(dto cloud.ConversationDTO, now time.Time) (models.ConversationRecord, error) {
	id, err := uuid.Parse(strings.TrimSpace(dto.ID))
	if err != nil {
		return models.ConversationRecord{}, fmt.Errorf("reconcile: parse id %q: %w", dto.ID, err)
	}

	title := FallbackTitle
	if dto.Title != nil && strings.TrimSpace(*dto.Title) != "" {
		title = *dto.Title
	}

	assistant := models.DefaultAssistantID
	if dto.AssistantID != nil {
		if parsed, err := uuid.Parse(strings.TrimSpace(*dto.AssistantID)); err == nil {
			assistant = parsed
		}
	}

	return models.ConversationRecord{
		ID:          id,
		Title:       title,
		IsPinned:    dto.IsPinned,
		Nodes:       decodeNodes(dto.Nodes),
		AssistantID: assistant,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func decodeNodes(raw json.RawMessage) []models.MessageNode {
	nodes := []models.MessageNode{}
	if len(raw) == 0 {
		return nodes
	}
	if err := json.Unmarshal(raw, &nodes); err != nil || nodes == nil {
		return []models.MessageNode{}
	}
	return nodes
}

// normalizeID maps equivalent spellings of a UUID to one key.
func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return strings.ToLower(id)
}
