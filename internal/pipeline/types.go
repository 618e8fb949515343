package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// TechnologyLabel names the single-cell library technology inferred for a record.
type TechnologyLabel string

// Supported technology labels. The 10x family carries the chemistry version when
// the protocol text names it.
const (
	Tech10xV3     TechnologyLabel = "v3"
	Tech10xV2     TechnologyLabel = "v2"
	Tech10xV1     TechnologyLabel = "v1"
	Tech10x       TechnologyLabel = "10x"
	TechSmartSeq  TechnologyLabel = "ss"
	TechDropSeq   TechnologyLabel = "dropseq"
	TechCelSeq    TechnologyLabel = "celseq"
	TechSortSeq   TechnologyLabel = "sortseq"
	TechSeqWell   TechnologyLabel = "seqwell"
	TechBioRad    TechnologyLabel = "biorad"
	TechInDrops   TechnologyLabel = "indrops"
	TechMarsSeq   TechnologyLabel = "marsseq"
	TechTang      TechnologyLabel = "tang"
	TechSplitSeq  TechnologyLabel = "splitseq"
	TechMicrowell TechnologyLabel = "microwellseq"
	TechUnknown   TechnologyLabel = "unknown"
)

// Record status markers written alongside metadata rows.
const (
	StatusFetched = "UIDfetched"
	StatusImputed = "imputed"
)

// Is10x reports whether the label belongs to the 10x Genomics family.
func (l TechnologyLabel) Is10x() bool {
	switch l {
	case Tech10xV3, Tech10xV2, Tech10xV1, Tech10x:
		return true
	default:
		return false
	}
}

// MetadataRecord is one experiment-level row extracted from a catalog document.
// Runs and Dates are aligned by index; TaxonIDs and Organisms are aligned with
// each other (one pair per run member).
type MetadataRecord struct {
	Project      string
	Experiment   string
	Submission   string
	Runs         []string
	Alias        string
	Dates        []string
	TaxonIDs     []string
	Organisms    []string
	Protocol     string
	Title        string
	Abstract     string
	Attributes   map[string]string
	Status       string
	Method       TechnologyLabel
	Is10x        bool
	IsSmartSeq   bool
	SourceUID    string
	DocumentHash string
}

// ErrMissingExperiment marks a record without an experiment accession.
var ErrMissingExperiment = errors.New("experiment accession is required")

// Validate checks the structural invariants of a parsed record.
func (r MetadataRecord) Validate() error {
	if r.Experiment == "" {
		return ErrMissingExperiment
	}
	if len(r.Runs) != len(r.Dates) {
		return fmt.Errorf("experiment %s: %d runs but %d publish dates", r.Experiment, len(r.Runs), len(r.Dates))
	}
	if len(r.TaxonIDs) != len(r.Organisms) {
		return fmt.Errorf("experiment %s: %d taxon ids but %d organisms", r.Experiment, len(r.TaxonIDs), len(r.Organisms))
	}
	return nil
}

// Job is one unit of work executed by the worker pool. Execute is called exactly
// once; a nil return marks the job successful.
type Job interface {
	ID() string
	Execute(ctx context.Context) error
}
