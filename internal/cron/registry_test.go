package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndSkipsNil(t *testing.T) {
	jobA := &stubJob{name: "order-expiry"}
	jobB := &stubJob{name: "outbox-retention"}
	registry, err := NewRegistry(jobA, nil)
	require.NoError(t, err)
	require.NoError(t, registry.Register(nil))
	require.NoError(t, registry.Register(jobB))

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, jobA, jobs[0])
	assert.Same(t, jobB, jobs[1])

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "internal slice leaked")

	found, ok := registry.Lookup("outbox-retention")
	require.True(t, ok)
	assert.Same(t, jobB, found)
}

func TestRegistryRejectsDuplicateAndBlankNames(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: "order-expiry"}, &stubJob{name: "order-expiry"})
	assert.Error(t, err)

	_, err = NewRegistry(&stubJob{name: "  "})
	assert.Error(t, err)
}
