package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())
	m.TokensAdded.WithLabelValues("polygon", "bridge").Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_sync_tokens_added_total{chain="polygon",source="bridge"} 3`)
}

func TestMetrics_Push(t *testing.T) {
	var gotPath, gotBody string
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	m := NewMetrics("test", prometheus.NewRegistry())
	m.FilesHashed.Add(7)

	require.NoError(t, m.Push(context.Background(), gw.URL, "reindex"))
	assert.True(t, strings.HasPrefix(gotPath, "/metrics/job/reindex"), gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestMetrics_PushDisabled(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())
	assert.NoError(t, m.Push(context.Background(), "", "reindex"))
}

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.RanksAssigned.WithLabelValues("helpers-chain"))
	RecordFeatured("helpers-chain", 4, 1, true)
	assert.Equal(t, before+4, testutil.ToFloat64(DefaultMetrics.RanksAssigned.WithLabelValues("helpers-chain")))
	assert.Equal(t, 1.0, testutil.ToFloat64(DefaultMetrics.RanksRemoved.WithLabelValues("helpers-chain")))
}
