package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestOutcome_Validate(t *testing.T) {
	asked := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	generated := asked.Add(2 * time.Second)
	executed := generated.Add(1 * time.Second)

	t.Run("success", func(t *testing.T) {
		o := &Outcome{
			Question:    "how many users?",
			InitialSQL:  strPtr("SELECT COUNT(*) FROM users"),
			FinalSQL:    strPtr("SELECT COUNT(*) FROM users"),
			Status:      StatusSuccess,
			Rows:        []Row{{"count": int64(3)}},
			AskedAt:     asked,
			GeneratedAt: &generated,
			ExecutedAt:  &executed,
		}
		require.NoError(t, o.Validate())
	})

	t.Run("refined_success_requires_refined_sql", func(t *testing.T) {
		o := &Outcome{
			Question:    "q",
			InitialSQL:  strPtr("bad sql"),
			FinalSQL:    strPtr("SELECT 1"),
			Status:      StatusRefinedSuccess,
			Rows:        []Row{},
			AskedAt:     asked,
			GeneratedAt: &generated,
			ExecutedAt:  &executed,
		}
		assert.Error(t, o.Validate())

		o.RefinedSQL = strPtr("SELECT 1")
		assert.NoError(t, o.Validate())
	})

	t.Run("success_forbids_refined_sql", func(t *testing.T) {
		o := &Outcome{
			Question:    "q",
			InitialSQL:  strPtr("SELECT 1"),
			RefinedSQL:  strPtr("SELECT 1"),
			FinalSQL:    strPtr("SELECT 1"),
			Status:      StatusSuccess,
			Rows:        []Row{},
			AskedAt:     asked,
			GeneratedAt: &generated,
			ExecutedAt:  &executed,
		}
		assert.Error(t, o.Validate())
	})

	t.Run("failed_forbids_final_sql_and_rows", func(t *testing.T) {
		o := &Outcome{
			Question:    "q",
			InitialSQL:  strPtr("bad"),
			RefinedSQL:  strPtr("still bad"),
			Status:      StatusFailed,
			Error:       strPtr("syntax error"),
			AskedAt:     asked,
			GeneratedAt: &generated,
			ExecutedAt:  &executed,
		}
		require.NoError(t, o.Validate())

		o.FinalSQL = strPtr("still bad")
		assert.Error(t, o.Validate())

		o.FinalSQL = nil
		o.Rows = []Row{}
		assert.Error(t, o.Validate())
	})

	t.Run("failed_requires_error_message", func(t *testing.T) {
		o := &Outcome{
			Question:    "q",
			InitialSQL:  strPtr("bad"),
			Status:      StatusFailed,
			AskedAt:     asked,
			GeneratedAt: &generated,
			ExecutedAt:  &executed,
		}
		assert.Error(t, o.Validate())
	})

	t.Run("error_with_nothing_generated", func(t *testing.T) {
		o := &Outcome{
			Question: "q",
			Status:   StatusError,
			Error:    strPtr("upstream exploded"),
			AskedAt:  asked,
		}
		require.NoError(t, o.Validate())
	})

	t.Run("inverted_timestamps_rejected", func(t *testing.T) {
		before := asked.Add(-time.Second)
		o := &Outcome{
			Question:    "q",
			Status:      StatusError,
			Error:       strPtr("boom"),
			AskedAt:     asked,
			GeneratedAt: &before,
		}
		assert.Error(t, o.Validate())
	})

	t.Run("unknown_status_rejected", func(t *testing.T) {
		o := &Outcome{Question: "q", Status: Status("partial"), AskedAt: asked}
		assert.Error(t, o.Validate())
	})
}

func TestOutcome_Record(t *testing.T) {
	asked := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	generated := asked.Add(time.Second)
	executed := generated.Add(time.Second)
	conf := 0.85

	o := &Outcome{
		Question:    "how many users signed up last month?",
		UserID:      strPtr("alice"),
		Category:    strPtr("growth"),
		InitialSQL:  strPtr("bad"),
		RefinedSQL:  strPtr("SELECT COUNT(*) FROM users"),
		FinalSQL:    strPtr("SELECT COUNT(*) FROM users"),
		Status:      StatusRefinedSuccess,
		Rows:        []Row{{"count": int64(567)}},
		Confidence:  &conf,
		AskedAt:     asked,
		GeneratedAt: &generated,
		ExecutedAt:  &executed,
	}

	rec := o.Record()

	assert.Equal(t, "alice", *rec.UserID)
	assert.Equal(t, StatusRefinedSuccess, rec.Status)
	assert.Equal(t, "SELECT COUNT(*) FROM users", *rec.FinalSQL)
	require.NotNil(t, rec.RowsReturned)
	assert.Equal(t, int64(1), *rec.RowsReturned)
	require.NotNil(t, rec.AskedAt)
	assert.Equal(t, asked, *rec.AskedAt)
	assert.Equal(t, 0.85, *rec.Confidence)
	assert.False(t, rec.Failed())

	t.Run("no_rows_means_nil_count", func(t *testing.T) {
		failed := &Outcome{
			Question: "q",
			Status:   StatusError,
			Error:    strPtr("boom"),
			AskedAt:  asked,
		}
		rec := failed.Record()
		assert.Nil(t, rec.RowsReturned)
		assert.True(t, rec.Failed())
	})
}
