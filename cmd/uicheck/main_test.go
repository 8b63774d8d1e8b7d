package main

import (
	"testing"

	"github.com/ahrdadan/uicheck/internal/fixture"
	"github.com/ahrdadan/uicheck/internal/suites"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectFixtures(t *testing.T) {
	reg := suites.NewRegistry(suites.DefaultOptions())

	all, err := selectFixtures(reg, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := selectFixtures(reg, suites.DemoFixture, "Verify Search results count for an Item")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, suites.DemoFixture, one[0].Name())

	_, err = selectFixtures(reg, "nope", "")
	assert.ErrorIs(t, err, suites.ErrFixtureNotFound)
	assert.Contains(t, err.Error(), suites.StorefrontFixture)

	_, err = selectFixtures(reg, suites.DemoFixture, "nope")
	assert.ErrorIs(t, err, fixture.ErrTestNotFound)
}
