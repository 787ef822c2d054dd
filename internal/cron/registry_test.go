package cron

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryKeepsOrderAndSkipsNil(t *testing.T) {
	a := &testJob{name: "a"}
	b := &testJob{name: "b"}
	registry := NewRegistry(a, nil)
	require.NoError(t, registry.Register(nil))
	require.NoError(t, registry.Register(b))

	jobs := registry.Jobs()
	assert.Equal(t, []Job{a, b}, jobs)

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "internal slice leaked")
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry := NewRegistry(&testJob{name: "pending_payment_sweep"})
	assert.Error(t, registry.Register(&testJob{name: "pending_payment_sweep"}))
	assert.Len(t, registry.Jobs(), 1)

	assert.Panics(t, func() {
		NewRegistry(&testJob{name: "x"}, &testJob{name: "x"})
	})
}
