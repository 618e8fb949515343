package sra

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scqc/internal/pipeline"
)

func loadFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/experiment_package.xml")
	require.NoError(t, err)
	return data
}

func TestParseExperimentPackages(t *testing.T) {
	t.Parallel()

	records, err := ParseExperimentPackages(loadFixture(t))
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "SRP300001", first.Project)
	assert.Equal(t, "SRX100001", first.Experiment)
	assert.Equal(t, "SRA200001", first.Submission)
	assert.Equal(t, "GSM500001", first.Alias)
	assert.Equal(t, []string{"SRR500001", "SRR500002"}, first.Runs)
	assert.Equal(t, []string{"2021-03-01 10:00:00", "2021-03-02 11:00:00"}, first.Dates)
	assert.Equal(t, []string{"10090", "10090"}, first.TaxonIDs)
	assert.Equal(t, []string{"Mus musculus", "Mus musculus"}, first.Organisms)
	assert.Contains(t, first.Protocol, "Chromium Single Cell 3' Reagent Kits v2")
	assert.Equal(t, "Atlas of the mouse cortex", first.Title)
	assert.Equal(t, "We profiled cortical cells.", first.Abstract)
	assert.Equal(t, map[string]string{"source_name": "cortex", "strain": "C57BL/6"}, first.Attributes)
}

func TestParseExperimentPackagesToleratesMissingOptionalFields(t *testing.T) {
	t.Parallel()

	records, err := ParseExperimentPackages(loadFixture(t))
	require.NoError(t, err)

	second := records[1]
	assert.Equal(t, "SRX100002", second.Experiment)
	assert.Equal(t, "SRP300001", second.Project)
	assert.Empty(t, second.Protocol)
	assert.Empty(t, second.Title)
	assert.Empty(t, second.Abstract)
	assert.Empty(t, second.Attributes)
	assert.NotNil(t, second.Attributes)
	assert.Equal(t, []string{"SRR500003"}, second.Runs)
	assert.Equal(t, []string{"Homo sapiens"}, second.Organisms)
}

func TestParseExperimentPackagesErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
		want error
	}{
		{name: "empty", doc: "  \n", want: ErrEmptyDocument},
		{name: "declaration only", doc: `<?xml version="1.0"?>`, want: ErrEmptyDocument},
		{name: "missing experiment accession", doc: `<EXPERIMENT_PACKAGE_SET><EXPERIMENT_PACKAGE><EXPERIMENT/></EXPERIMENT_PACKAGE></EXPERIMENT_PACKAGE_SET>`, want: pipeline.ErrMissingExperiment},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseExperimentPackages([]byte(tc.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestParseExperimentPackagesMalformed(t *testing.T) {
	t.Parallel()

	_, err := ParseExperimentPackages([]byte(`<EXPERIMENT_PACKAGE_SET><EXPERIMENT_PACKAGE>`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse experiment packages")
}

func TestParseExperimentPackagesEmptySet(t *testing.T) {
	t.Parallel()

	records, err := ParseExperimentPackages([]byte(`<EXPERIMENT_PACKAGE_SET></EXPERIMENT_PACKAGE_SET>`))
	require.NoError(t, err)
	assert.Empty(t, records)
}
