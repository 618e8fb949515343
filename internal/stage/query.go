package stage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/scqc/internal/classify"
	"github.com/JakeFAU/scqc/internal/idlist"
	"github.com/JakeFAU/scqc/internal/pipeline"
	"github.com/JakeFAU/scqc/internal/storage/tsv"
)

// Catalog fetches and parses the experiment packages behind one catalog UID.
type Catalog interface {
	FetchRecords(ctx context.Context, uid string) ([]pipeline.MetadataRecord, []byte, error)
}

// QueryDeps wires the query stage. Cache, Records and Hasher are optional.
type QueryDeps struct {
	Catalog     Catalog
	Classifier  *classify.Classifier
	Metadata    *tsv.Store
	Records     pipeline.RecordStore
	Cache       pipeline.BlobStore
	CachePrefix string
	Hasher      pipeline.Hasher
	// Projects receives every project accession seen; it is the todo list of
	// the downstream stages.
	Projects idlist.Store
	Logger   *zap.Logger
}

type queryStage struct {
	deps   QueryDeps
	logger *zap.Logger
}

// NewQuery builds the stage that turns catalog UIDs into classified metadata rows.
func NewQuery(name string, cfg Config, deps QueryDeps) (Stage, error) {
	if deps.Catalog == nil || deps.Classifier == nil || deps.Metadata == nil {
		return Stage{}, fmt.Errorf("query stage requires catalog, classifier and metadata store")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	q := &queryStage{deps: deps, logger: deps.Logger.Named(name)}
	return Stage{
		Name:    name,
		Kind:    KindQuery,
		Config:  cfg,
		Execute: q.execute,
		Setup:   q.setup,
	}, nil
}

func (q *queryStage) setup(context.Context) error {
	return mkdirs(q.deps.Metadata.Dir())
}

func (q *queryStage) execute(ctx context.Context, batch []string) []string {
	var records []pipeline.MetadataRecord
	fetched := ForEach(ctx, batch, q.logger, func(ctx context.Context, uid string) error {
		recs, err := q.fetch(ctx, uid)
		if err != nil {
			return err
		}
		records = append(records, recs...)
		return nil
	})
	if len(fetched) == 0 {
		return nil
	}

	distinct := q.deps.Classifier.ClassifyRecords(records)
	q.logger.Debug("classified batch",
		zap.Int("records", len(records)),
		zap.Int("distinct_protocols", distinct),
	)
	if err := q.deps.Metadata.AppendRecords(records); err != nil {
		q.logger.Error("metadata write failed; batch will be retried", zap.Error(err))
		return nil
	}
	if q.deps.Records != nil {
		if err := q.deps.Records.StoreRecords(ctx, records); err != nil {
			q.logger.Warn("record store write failed", zap.Error(err))
		}
	}
	projects := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Project != "" {
			projects = append(projects, rec.Project)
		}
	}
	added, err := q.deps.Projects.Add(projects...)
	if err != nil {
		q.logger.Error("project list update failed; batch will be retried", zap.Error(err))
		return nil
	}
	if added > 0 {
		q.logger.Info("new projects queued", zap.Int("added", added))
	}
	return fetched
}

func (q *queryStage) fetch(ctx context.Context, uid string) ([]pipeline.MetadataRecord, error) {
	records, doc, err := q.deps.Catalog.FetchRecords(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("fetch uid %s: %w", uid, err)
	}
	digest := ""
	if q.deps.Hasher != nil {
		if digest, err = q.deps.Hasher.Hash(doc); err != nil {
			return nil, fmt.Errorf("hash uid %s: %w", uid, err)
		}
		q.cache(ctx, uid, digest, doc)
	}
	for i := range records {
		records[i].Status = pipeline.StatusFetched
		records[i].DocumentHash = digest
		if records[i].SourceUID == "" {
			records[i].SourceUID = uid
		}
	}
	return records, nil
}

// cache stores the raw document under its digest. Failures only cost the copy.
func (q *queryStage) cache(ctx context.Context, uid, digest string, doc []byte) {
	if q.deps.Cache == nil || digest == "" {
		return
	}
	key := cacheKey(q.deps.CachePrefix, digest)
	exists, err := q.deps.Cache.Exists(ctx, key)
	if err == nil && exists {
		return
	}
	if _, err := q.deps.Cache.PutObject(ctx, key, "application/xml", bytes.NewReader(doc)); err != nil {
		q.logger.Warn("document cache write failed", zap.String("id", uid), zap.Error(err))
	}
}

// cacheKey shards documents by the first two digest characters.
func cacheKey(prefix, digest string) string {
	if len(digest) < 2 {
		return path.Join(prefix, digest+".xml")
	}
	return path.Join(prefix, digest[:2], digest+".xml")
}

func mkdirs(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
