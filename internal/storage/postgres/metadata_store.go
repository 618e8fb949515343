package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/scqc/internal/pipeline"
)

const defaultMetadataTable = "sra_metadata"

// MetadataStore upserts classified experiment rows keyed by experiment accession.
type MetadataStore struct {
	db    DB
	table string
}

// NewMetadataStore wraps db. An empty table falls back to sra_metadata.
func NewMetadataStore(db DB, table string) (*MetadataStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := checkTable(table, defaultMetadataTable)
	if err != nil {
		return nil, err
	}
	return &MetadataStore{db: db, table: name}, nil
}

// Close releases the pool.
func (s *MetadataStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// StoreRecords writes every record inside one transaction. Re-fetching an
// experiment overwrites its previous row.
func (s *MetadataStore) StoreRecords(ctx context.Context, records []pipeline.MetadataRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin metadata tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (
	experiment,
	project,
	submission,
	runs,
	publish_dates,
	taxon_ids,
	organisms,
	alias,
	protocol,
	title,
	abstract,
	attributes,
	method,
	is_10x,
	is_ss,
	status,
	source_uid,
	document_hash
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
)
ON CONFLICT (experiment) DO UPDATE SET
	project = EXCLUDED.project,
	submission = EXCLUDED.submission,
	runs = EXCLUDED.runs,
	publish_dates = EXCLUDED.publish_dates,
	taxon_ids = EXCLUDED.taxon_ids,
	organisms = EXCLUDED.organisms,
	alias = EXCLUDED.alias,
	protocol = EXCLUDED.protocol,
	title = EXCLUDED.title,
	abstract = EXCLUDED.abstract,
	attributes = EXCLUDED.attributes,
	method = EXCLUDED.method,
	is_10x = EXCLUDED.is_10x,
	is_ss = EXCLUDED.is_ss,
	status = EXCLUDED.status,
	source_uid = EXCLUDED.source_uid,
	document_hash = EXCLUDED.document_hash`, s.table)

	for _, rec := range records {
		args, argErr := metadataArgs(rec)
		if argErr != nil {
			return argErr
		}
		if _, err = tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert experiment %s: %w", rec.Experiment, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit metadata tx: %w", err)
	}
	return nil
}

func metadataArgs(rec pipeline.MetadataRecord) ([]any, error) {
	attrs := rec.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("marshal attributes for %s: %w", rec.Experiment, err)
	}
	return []any{
		rec.Experiment,
		rec.Project,
		rec.Submission,
		nonNil(rec.Runs),
		nonNil(rec.Dates),
		nonNil(rec.TaxonIDs),
		nonNil(rec.Organisms),
		rec.Alias,
		rec.Protocol,
		rec.Title,
		rec.Abstract,
		attrsJSON,
		string(rec.Method),
		rec.Is10x,
		rec.IsSmartSeq,
		rec.Status,
		rec.SourceUID,
		rec.DocumentHash,
	}, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
