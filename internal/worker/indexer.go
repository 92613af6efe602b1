package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/mkrylosov/orderhub/internal/events"
	"github.com/mkrylosov/orderhub/internal/logging"
)

// Indexer mirrors product events into the search index. Indexing by
// document id is naturally idempotent, so it needs no ledger transaction.
type Indexer struct {
	ES    *elasticsearch.Client
	Index string
}

func (ix *Indexer) HandleProductUpserted(ctx context.Context, ev *events.Event) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(ev.Data); err != nil {
		return err
	}

	res, err := ix.ES.Index(
		ix.Index,
		&buf,
		ix.ES.Index.WithDocumentID(ev.EntityID),
		ix.ES.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index product %s: %w", ev.EntityID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index product %s: %s", ev.EntityID, res.Status())
	}

	logging.FromContext(ctx).Info("product indexed", "product_id", ev.EntityID)
	return nil
}

func (ix *Indexer) HandleProductDeleted(ctx context.Context, ev *events.Event) error {
	res, err := ix.ES.Delete(
		ix.Index,
		ev.EntityID,
		ix.ES.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("delete product %s from index: %w", ev.EntityID, err)
	}
	defer res.Body.Close()
	// 404 means the document never made it into the index; nothing to undo.
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete product %s from index: %s", ev.EntityID, res.Status())
	}

	logging.FromContext(ctx).Info("product removed from index", "product_id", ev.EntityID)
	return nil
}
