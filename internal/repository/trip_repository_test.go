package repository

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActiveTripCountQuery_CreatePathOmitsExclusion(t *testing.T) {
	// The create path has no trip yet. The exclusion must be dropped
	// from the statement, not bound as an empty string: trips.id is
	// UUID and Postgres rejects '' at bind time (22P02), which would
	// turn every direct in-progress create into an internal error.
	query, args := activeTripCountQuery("DT-1", "")

	require.Len(t, args, 1)
	assert.Equal(t, "DT-1", args[0])
	assert.NotContains(t, query, "$2")
	assert.NotContains(t, query, "id !=")
}

func TestActiveTripCountQuery_StartPathExcludesOwnTrip(t *testing.T) {
	tripID := uuid.NewString()
	query, args := activeTripCountQuery("DT-1", tripID)

	require.Len(t, args, 2)
	assert.Equal(t, "DT-1", args[0])
	assert.Equal(t, tripID, args[1])
	assert.True(t, strings.Contains(query, "id != $2"))
}
