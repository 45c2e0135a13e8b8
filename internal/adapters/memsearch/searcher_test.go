package memsearch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fantastic-router/router/planner"
)

func TestSearch_ExactFirstFieldMatchRanksFirst(t *testing.T) {
	s := New(map[string][]planner.Row{
		"landlords": {
			{"id": "1", "name": "Michael Chen"},
			{"id": "2", "name": "Michael"},
		},
	}, nil)

	rows, err := s.Search(context.Background(), "Michael", []string{"landlords"}, []string{"name"}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2", rows[0]["id"])
}

func TestSearch_UnknownTableErrors(t *testing.T) {
	s := New(nil, nil)
	_, err := s.Search(context.Background(), "x", []string{"ghost"}, []string{"name"}, 10)
	require.Error(t, err)
}

func TestSearch_RestrictedColumnExcludedFromSearchAndResults(t *testing.T) {
	s := New(map[string][]planner.Row{
		"landlords": {{"id": "1", "name": "Michael", "ssn": "555-00-1111"}},
	}, []string{"landlords.ssn"})

	rows, err := s.Search(context.Background(), "555-00-1111", []string{"landlords"}, []string{"ssn"}, 10)
	require.NoError(t, err)
	assert.Empty(t, rows, "restricted column must not be searchable")

	rows, err = s.Search(context.Background(), "Michael", []string{"landlords"}, []string{"name", "ssn"}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	_, present := rows[0]["ssn"]
	assert.False(t, present, "restricted column must not appear in results")
}

func TestSearch_LimitCapsTotalResults(t *testing.T) {
	s := New(map[string][]planner.Row{
		"landlords": {
			{"id": "1", "name": "Michael A"},
			{"id": "2", "name": "Michael B"},
			{"id": "3", "name": "Michael C"},
		},
	}, nil)

	rows, err := s.Search(context.Background(), "michael", []string{"landlords"}, []string{"name"}, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
