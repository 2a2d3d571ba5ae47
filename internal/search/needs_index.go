package search

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"neighborsos/internal/client"
	"neighborsos/internal/models"
	"neighborsos/internal/util"
)

const needsIndex = "urgent_needs"

// NeedsIndex mirrors open needs into the search cluster for free-text
// lookup by item or charity name. The listing endpoint falls back to
// SQL filtering when the index cannot answer, so indexing failures are
// logged, not surfaced.
type NeedsIndex struct {
	es *client.ESClient
}

func NewNeedsIndex(es *client.ESClient) *NeedsIndex {
	return &NeedsIndex{es: es}
}

type needDocument struct {
	ID          string `json:"id"`
	ItemName    string `json:"item_name"`
	Category    string `json:"category"`
	Notes       string `json:"notes"`
	CharityName string `json:"charity_name"`
}

// Index upserts one need document.
func (n *NeedsIndex) Index(ctx context.Context, need *models.UrgentNeed) {
	doc := needDocument{
		ID:       need.ID.String(),
		ItemName: need.ItemName,
		Category: need.Category,
		Notes:    need.Notes,
	}
	if need.Charity != nil {
		doc.CharityName = need.Charity.Name
	}

	res, err := n.es.IndexDocument(ctx, needsIndex, doc.ID, doc)
	if err != nil {
		util.Warn("Failed to index need", zap.String("id", doc.ID), zap.Error(err))
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		util.Warn("Index rejected need document",
			zap.String("id", doc.ID),
			zap.String("status", res.Status()))
	}
}

// Remove drops a claimed or deleted need from the index.
func (n *NeedsIndex) Remove(ctx context.Context, id uuid.UUID) {
	res, err := n.es.DeleteDocument(ctx, needsIndex, id.String())
	if err != nil {
		util.Warn("Failed to remove need from index",
			zap.String("id", id.String()),
			zap.Error(err))
		return
	}
	res.Body.Close()
}

// Search returns the IDs of needs matching a free-text query, best
// match first.
func (n *NeedsIndex) Search(ctx context.Context, query string) ([]uuid.UUID, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query,
				"fields":    []string{"item_name^2", "charity_name^2", "category", "notes"},
				"fuzziness": "AUTO",
			},
		},
		"size": 100,
	}

	res, err := n.es.Search(ctx, needsIndex, body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := n.es.ParseResponse(res, &parsed); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		id, err := uuid.Parse(hit.ID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
