// Package tsv appends metadata records to tab-separated files: one aggregate
// file plus one file per project. Headers are written only when a file is
// created.
package tsv

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/JakeFAU/scqc/internal/atomicfile"
	"github.com/JakeFAU/scqc/internal/pipeline"
)

// AggregateFile is the name of the file that collects every record.
const AggregateFile = "all_metadata.tsv"

// ErrProjectNotFound is returned when a project has no metadata file.
var ErrProjectNotFound = errors.New("project metadata not found")

// Header lists the metadata columns in file order.
var Header = []string{
	"project", "experiment", "submission", "runs", "date", "taxon_id", "organism",
	"lcp", "title", "abstract", "alias", "attributes", "method", "is_10x", "is_ss", "status",
}

// ImputeHeader lists the columns of a project's classification summary.
var ImputeHeader = []string{"experiment", "method", "is_10x", "is_ss"}

// Store reads and writes metadata files under one directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New constructs a Store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the metadata directory.
func (s *Store) Dir() string {
	return s.dir
}

// AggregatePath returns the path of the all-records file.
func (s *Store) AggregatePath() string {
	return filepath.Join(s.dir, AggregateFile)
}

// ProjectPath returns the per-project metadata path.
func (s *Store) ProjectPath(project string) (string, error) {
	if err := checkProject(project); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, project+"_metadata.tsv"), nil
}

// ImputePath returns the per-project classification summary path.
func (s *Store) ImputePath(project string) (string, error) {
	if err := checkProject(project); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, project+"_impute.tsv"), nil
}

func checkProject(project string) error {
	if project == "" || project == "." || project == ".." ||
		strings.ContainsAny(project, `/\`) || filepath.Base(project) != project {
		return fmt.Errorf("invalid project accession %q", project)
	}
	return nil
}

// StoreRecords appends records to the aggregate file and to each record's
// project file.
func (s *Store) StoreRecords(_ context.Context, records []pipeline.MetadataRecord) error {
	return s.AppendRecords(records)
}

// AppendRecords appends records to the aggregate file and to each record's
// project file. Records without a project only reach the aggregate file.
func (s *Store) AppendRecords(records []pipeline.MetadataRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := appendRows(s.AggregatePath(), records); err != nil {
		return err
	}
	byProject := make(map[string][]pipeline.MetadataRecord)
	var order []string
	for _, rec := range records {
		if rec.Project == "" {
			continue
		}
		if _, ok := byProject[rec.Project]; !ok {
			order = append(order, rec.Project)
		}
		byProject[rec.Project] = append(byProject[rec.Project], rec)
	}
	for _, project := range order {
		path, err := s.ProjectPath(project)
		if err != nil {
			return err
		}
		if err := appendRows(path, byProject[project]); err != nil {
			return err
		}
	}
	return nil
}

func appendRows(path string, records []pipeline.MetadataRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}
	// #nosec G304 -- path is built from the configured metadata dir.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat %s: %w", path, err)
	}

	w := newWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			_ = f.Close()
			return fmt.Errorf("write header %s: %w", path, err)
		}
	}
	for _, rec := range records {
		row, err := encodeRow(rec)
		if err != nil {
			_ = f.Close()
			return err
		}
		if err := w.Write(row); err != nil {
			_ = f.Close()
			return fmt.Errorf("write row %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func newWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return cw
}

func encodeRow(rec pipeline.MetadataRecord) ([]string, error) {
	attrs := rec.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	rawAttrs, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attributes for %s: %w", rec.Experiment, err)
	}
	return []string{
		rec.Project,
		rec.Experiment,
		rec.Submission,
		strings.Join(rec.Runs, ","),
		strings.Join(rec.Dates, ","),
		strings.Join(rec.TaxonIDs, ","),
		strings.Join(rec.Organisms, ","),
		rec.Protocol,
		rec.Title,
		rec.Abstract,
		rec.Alias,
		string(rawAttrs),
		string(rec.Method),
		strconv.FormatBool(rec.Is10x),
		strconv.FormatBool(rec.IsSmartSeq),
		rec.Status,
	}, nil
}

// ReadProject loads every row of a project's metadata file in file order.
func (s *Store) ReadProject(project string) ([]pipeline.MetadataRecord, error) {
	path, err := s.ProjectPath(project)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path validated by ProjectPath.
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", project, ErrProjectNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	records, err := readRecords(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

func readRecords(r io.Reader) ([]pipeline.MetadataRecord, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = len(Header)
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []pipeline.MetadataRecord
	for i, row := range rows {
		if i == 0 && row[0] == Header[0] && row[1] == Header[1] {
			continue
		}
		rec, err := decodeRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeRow(row []string) (pipeline.MetadataRecord, error) {
	attrs := map[string]string{}
	if row[11] != "" {
		if err := json.Unmarshal([]byte(row[11]), &attrs); err != nil {
			return pipeline.MetadataRecord{}, fmt.Errorf("decode attributes: %w", err)
		}
	}
	is10x, _ := strconv.ParseBool(row[13])
	isSS, _ := strconv.ParseBool(row[14])
	return pipeline.MetadataRecord{
		Project:    row[0],
		Experiment: row[1],
		Submission: row[2],
		Runs:       splitList(row[3]),
		Dates:      splitList(row[4]),
		TaxonIDs:   splitList(row[5]),
		Organisms:  splitList(row[6]),
		Protocol:   row[7],
		Title:      row[8],
		Abstract:   row[9],
		Alias:      row[10],
		Attributes: attrs,
		Method:     pipeline.TechnologyLabel(row[12]),
		Is10x:      is10x,
		IsSmartSeq: isSS,
		Status:     row[15],
	}, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

// Runs returns the distinct run accessions recorded for a project, in file order.
func (s *Store) Runs(project string) ([]string, error) {
	records, err := s.ReadProject(project)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var runs []string
	for _, rec := range records {
		for _, run := range rec.Runs {
			if _, ok := seen[run]; ok || run == "" {
				continue
			}
			seen[run] = struct{}{}
			runs = append(runs, run)
		}
	}
	return runs, nil
}

// WriteImpute atomically replaces a project's classification summary with one
// row per distinct experiment.
func (s *Store) WriteImpute(project string, records []pipeline.MetadataRecord) error {
	path, err := s.ImputePath(project)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	w := newWriter(&buf)
	if err := w.Write(ImputeHeader); err != nil {
		return fmt.Errorf("write impute header: %w", err)
	}
	seen := make(map[string]struct{})
	for _, rec := range records {
		if _, dup := seen[rec.Experiment]; dup {
			continue
		}
		seen[rec.Experiment] = struct{}{}
		row := []string{
			rec.Experiment,
			string(rec.Method),
			strconv.FormatBool(rec.Is10x),
			strconv.FormatBool(rec.IsSmartSeq),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write impute row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush impute rows: %w", err)
	}
	if err := atomicfile.Write(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
