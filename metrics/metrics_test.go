package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordProviderRequest(t *testing.T) {
	before := testutil.ToFloat64(ProviderRequests.WithLabelValues("tmdb", OutcomeSuccess))
	RecordProviderRequest("tmdb", OutcomeSuccess, 20*time.Millisecond)
	after := testutil.ToFloat64(ProviderRequests.WithLabelValues("tmdb", OutcomeSuccess))
	assert.Equal(t, before+1, after)
}

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(CacheLookups.WithLabelValues("tmdb_movie", "hit"))
	misses := testutil.ToFloat64(CacheLookups.WithLabelValues("tmdb_movie", "miss"))

	RecordCacheLookup("tmdb_movie", true)
	RecordCacheLookup("tmdb_movie", false)
	RecordCacheLookup("tmdb_movie", false)

	assert.Equal(t, hits+1, testutil.ToFloat64(CacheLookups.WithLabelValues("tmdb_movie", "hit")))
	assert.Equal(t, misses+2, testutil.ToFloat64(CacheLookups.WithLabelValues("tmdb_movie", "miss")))
}

func TestRecordUploadAndRun(t *testing.T) {
	failed := testutil.ToFloat64(ArtworkUploads.WithLabelValues("poster", "error"))
	RecordUpload("poster", errors.New("boom"))
	assert.Equal(t, failed+1, testutil.ToFloat64(ArtworkUploads.WithLabelValues("poster", "error")))

	runs := testutil.ToFloat64(RunsTotal.WithLabelValues("success"))
	RecordRun(time.Second, nil)
	assert.Equal(t, runs+1, testutil.ToFloat64(RunsTotal.WithLabelValues("success")))

	TrackRun(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(RunInProgress))
	TrackRun(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(RunInProgress))
}
