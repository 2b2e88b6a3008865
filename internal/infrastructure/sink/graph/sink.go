// Package graph projects extracted documents into Neo4j. Each run
// becomes a Document node linked to Vendor and Client nodes merged by
// name, with one LineItem node per table row. The run id is the merge
// key, so rewrites replace the previous projection.
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/antonkurs/docextract/internal/core/domain"
)

type Sink struct {
	driver   neo4j.DriverWithContext
	database string
}

func NewSink(driver neo4j.DriverWithContext, database string) *Sink {
	if database == "" {
		database = "neo4j"
	}
	return &Sink{driver: driver, database: database}
}

func (s *Sink) Name() string { return "graph" }

func (s *Sink) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

const documentQuery = `
MERGE (d:Document {run_id: $run_id})
SET d += $props
WITH d
OPTIONAL MATCH (d)-[:HAS_ITEM]->(old:LineItem)
DETACH DELETE old
WITH d
FOREACH (name IN CASE WHEN $vendor <> '' THEN [$vendor] ELSE [] END |
	MERGE (v:Party {name: name})
	MERGE (v)-[:ISSUED]->(d))
FOREACH (name IN CASE WHEN $client <> '' THEN [$client] ELSE [] END |
	MERGE (c:Party {name: name})
	MERGE (d)-[:BILLED_TO]->(c))
WITH d
UNWIND $items AS item
CREATE (li:LineItem)
SET li = item
CREATE (d)-[:HAS_ITEM]->(li)`

// Write projects the document in one write transaction. Documents with
// no line items skip the UNWIND by passing an empty list through a
// separate statement.
func (s *Sink) Write(ctx context.Context, runID string, doc *domain.StructuredDocument, res *domain.ValidationResult) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer func() {
		_ = session.Close(ctx)
	}()

	params := queryParams(runID, doc, res)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := documentQuery
		if len(doc.LineItems) == 0 {
			query = documentQueryNoItems
		}
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return nil, result.Err()
	})
	if err != nil {
		return fmt.Errorf("project document %s: %w", runID, err)
	}
	return nil
}

const documentQueryNoItems = `
MERGE (d:Document {run_id: $run_id})
SET d += $props
WITH d
OPTIONAL MATCH (d)-[:HAS_ITEM]->(old:LineItem)
DETACH DELETE old
WITH d
FOREACH (name IN CASE WHEN $vendor <> '' THEN [$vendor] ELSE [] END |
	MERGE (v:Party {name: name})
	MERGE (v)-[:ISSUED]->(d))
FOREACH (name IN CASE WHEN $client <> '' THEN [$client] ELSE [] END |
	MERGE (c:Party {name: name})
	MERGE (d)-[:BILLED_TO]->(c))`

// queryParams flattens the document into Cypher parameters. Absent
// optional fields are omitted from the property map rather than stored
// as zero values.
func queryParams(runID string, doc *domain.StructuredDocument, res *domain.ValidationResult) map[string]any {
	props := map[string]any{
		"is_valid":           res.IsValid,
		"overall_confidence": res.OverallConfidence,
	}
	if doc.InvoiceNumber != nil {
		props["invoice_number"] = doc.InvoiceNumber.Value.Text
	}
	if doc.InvoiceDate != nil {
		props["invoice_date"] = doc.InvoiceDate.Value.Date
	}
	if doc.DueDate != nil {
		props["due_date"] = doc.DueDate.Value.Date
	}
	if doc.Summary.GrandTotal != nil {
		props["grand_total"] = doc.Summary.GrandTotal.Value.Amount
	}
	if doc.Summary.Subtotal != nil {
		props["subtotal"] = doc.Summary.Subtotal.Value.Amount
	}
	if doc.Summary.Tax != nil {
		props["tax"] = doc.Summary.Tax.Value.Amount
	}
	if doc.Summary.Currency != "" {
		props["currency"] = doc.Summary.Currency
	}

	items := make([]map[string]any, 0, len(doc.LineItems))
	for i, li := range doc.LineItems {
		items = append(items, map[string]any{
			"position":    i + 1,
			"description": li.Description.Value.Text,
			"quantity":    li.Quantity.Value.Amount,
			"unit_price":  li.UnitPrice.Value.Amount,
			"line_total":  li.LineTotal.Value.Amount,
			"credit":      li.Credit,
		})
	}

	return map[string]any{
		"run_id": runID,
		"props":  props,
		"vendor": partyName(doc.Vendor),
		"client": partyName(doc.Client),
		"items":  items,
	}
}

func partyName(p domain.Party) string {
	if p.Name == nil {
		return ""
	}
	return p.Name.Value.Text
}
