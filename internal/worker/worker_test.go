package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/scqc/internal/metrics"
	"github.com/JakeFAU/scqc/internal/pipeline"
)

func init() {
	metrics.Init()
}

type fakeJob struct {
	id    string
	err   error
	panic bool
	ran   int
}

func (j *fakeJob) ID() string { return j.id }

func (j *fakeJob) Execute(context.Context) error {
	j.ran++
	if j.panic {
		panic("exploded")
	}
	return j.err
}

type sliceSource struct {
	jobs []pipeline.Job
}

func (s *sliceSource) TryDequeue() (pipeline.Job, bool) {
	if len(s.jobs) == 0 {
		return nil, false
	}
	job := s.jobs[0]
	s.jobs = s.jobs[1:]
	return job, true
}

func TestWorkerRunCollectsSuccesses(t *testing.T) {
	t.Parallel()

	ok1 := &fakeJob{id: "SRR1"}
	bad := &fakeJob{id: "SRR2", err: errors.New("exit status 3")}
	ok2 := &fakeJob{id: "SRR3"}
	source := &sliceSource{jobs: []pipeline.Job{ok1, bad, ok2}}
	collector := &Collector{}

	New("w0", source, collector, zap.NewNop()).Run(context.Background())

	require.Equal(t, []string{"SRR1", "SRR3"}, collector.IDs())
	require.Equal(t, 2, collector.Len())
	require.Equal(t, 1, ok1.ran)
	require.Equal(t, 1, bad.ran)
	require.Equal(t, 1, ok2.ran)
}

func TestWorkerRecoversPanics(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	boom := &fakeJob{id: "SRR9", panic: true}
	after := &fakeJob{id: "SRR10"}
	source := &sliceSource{jobs: []pipeline.Job{boom, after}}
	collector := &Collector{}

	require.NotPanics(t, func() {
		New("w1", source, collector, zap.New(core)).Run(context.Background())
	})

	require.Equal(t, []string{"SRR10"}, collector.IDs())
	entries := logs.FilterMessage("job failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, "SRR9", entries[0].ContextMap()["job_id"])
	require.Contains(t, entries[0].ContextMap()["error"], "job panicked: exploded")
}

func TestWorkerRunEmptySourceReturns(t *testing.T) {
	t.Parallel()

	collector := &Collector{}
	New("idle", &sliceSource{}, collector, nil).Run(context.Background())
	require.Empty(t, collector.IDs())
}

func TestCollectorIDsReturnsCopy(t *testing.T) {
	t.Parallel()

	c := &Collector{}
	c.Add("a")
	ids := c.IDs()
	ids[0] = "mutated"
	require.Equal(t, []string{"a"}, c.IDs())
}
