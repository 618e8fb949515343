package tsv

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scqc/internal/pipeline"
)

func sampleRecords() []pipeline.MetadataRecord {
	return []pipeline.MetadataRecord{
		{
			Project:    "SRP1",
			Experiment: "SRX1",
			Submission: "SRA1",
			Runs:       []string{"SRR1", "SRR2"},
			Dates:      []string{"2021-01-01 00:00:00", "2021-01-02 00:00:00"},
			TaxonIDs:   []string{"9606", "9606"},
			Organisms:  []string{"Homo sapiens", "Homo sapiens"},
			Protocol:   "10x v3\twith a tab",
			Title:      "Title",
			Abstract:   "Line one\nline two with \"quotes\"",
			Alias:      "GSM1",
			Attributes: map[string]string{"tissue": "lung"},
			Method:     pipeline.Tech10xV3,
			Is10x:      true,
			Status:     pipeline.StatusFetched,
		},
		{
			Project:    "SRP2",
			Experiment: "SRX2",
			Runs:       []string{"SRR3"},
			Dates:      []string{"2021-02-01 00:00:00"},
			Method:     pipeline.TechUnknown,
			Status:     pipeline.StatusFetched,
		},
		{
			Project:    "SRP1",
			Experiment: "SRX3",
			Runs:       []string{"SRR2", "SRR4"},
			Dates:      []string{"2021-01-02 00:00:00", "2021-01-03 00:00:00"},
			Method:     pipeline.TechSmartSeq,
			IsSmartSeq: true,
			Status:     pipeline.StatusFetched,
		},
	}
}

func TestAppendRecordsWritesAggregateAndProjectFiles(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	require.NoError(t, s.StoreRecords(context.Background(), sampleRecords()))

	all, err := os.ReadFile(s.AggregatePath())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(all), strings.Join(Header, "\t")+"\n"))

	srp1, err := s.ReadProject("SRP1")
	require.NoError(t, err)
	require.Len(t, srp1, 2)
	assert.Equal(t, sampleRecords()[0], srp1[0])
	assert.Equal(t, "SRX3", srp1[1].Experiment)
	assert.True(t, srp1[1].IsSmartSeq)

	srp2, err := s.ReadProject("SRP2")
	require.NoError(t, err)
	require.Len(t, srp2, 1)
	assert.Equal(t, "SRX2", srp2[0].Experiment)
	assert.Empty(t, srp2[0].Attributes)
}

func TestAppendRecordsWritesHeaderOnce(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	require.NoError(t, s.AppendRecords(sampleRecords()[:1]))
	require.NoError(t, s.AppendRecords(sampleRecords()[2:]))

	raw, err := os.ReadFile(s.AggregatePath())
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), strings.Join(Header, "\t")))

	records, err := s.ReadProject("SRP1")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestAppendRecordsEmptyIsNoop(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	require.NoError(t, s.AppendRecords(nil))
	_, err := os.Stat(s.AggregatePath())
	assert.True(t, os.IsNotExist(err))
}

func TestReadProjectMissing(t *testing.T) {
	t.Parallel()

	_, err := New(t.TempDir()).ReadProject("SRP404")
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestProjectPathRejectsTraversal(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	for _, bad := range []string{"", "..", "../etc", "a/b", `a\b`} {
		_, err := s.ProjectPath(bad)
		assert.Error(t, err, bad)
	}
}

func TestRunsDeduplicates(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	require.NoError(t, s.AppendRecords(sampleRecords()))

	runs, err := s.Runs("SRP1")
	require.NoError(t, err)
	assert.Equal(t, []string{"SRR1", "SRR2", "SRR4"}, runs)
}

func TestWriteImpute(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	records := sampleRecords()
	records = append(records, records[0])
	require.NoError(t, s.WriteImpute("SRP1", records))

	path, err := s.ImputePath("SRP1")
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"experiment\tmethod\tis_10x\tis_ss\n"+
			"SRX1\tv3\ttrue\tfalse\n"+
			"SRX2\tunknown\tfalse\tfalse\n"+
			"SRX3\tss\tfalse\ttrue\n",
		string(raw))

	require.NoError(t, s.WriteImpute("SRP1", records[:1]))
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "experiment\tmethod\tis_10x\tis_ss\nSRX1\tv3\ttrue\tfalse\n", string(raw))
}
