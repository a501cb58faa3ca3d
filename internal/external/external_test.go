package external

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/httpx"
	"github.com/0xsequence/token-directory/internal/idhash"
	"github.com/0xsequence/token-directory/internal/storage/fsstore"
)

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"valid", `{"externalTokenLists":[{"name":"a","chainIds":[1,10],"url":"https://a"}]}`, ""},
		{"invalid json", `{`, "invalid json"},
		{"missing array", `{"externalTokenLists":{}}`, "missing externalTokenLists"},
		{"duplicate names", `{"externalTokenLists":[{"name":"a","chainIds":[]},{"name":"a","chainIds":[]}]}`, "duplicate token list names: a"},
		{"chainIds not array", `{"externalTokenLists":[{"name":"a","chainIds":1}]}`, "not an array"},
		{"non-number chainId", `{"externalTokenLists":[{"name":"a","chainIds":[1,"10"]}]}`, "non-number chainId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(tt.data))
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, []uint64{1, 10}, cfg.ExternalTokenLists[0].ChainIDs)
				return
			}
			require.Error(t, err)
			assert.True(t, domain.IsStructural(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

const goodList = `{"name":"Good","tokens":[{"chainId":1,"address":"0x1"}]}`

func setup(t *testing.T) (*fsstore.Store, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/good.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, goodList)
	})
	mux.HandleFunc("/broken.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	})
	mux.HandleFunc("/down.json", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)

	fs := afero.NewMemMapFs()
	store := fsstore.New(fs, "index")
	cfg := `{"externalTokenLists":[
		{"name":"good","chainIds":[1],"url":"` + srv.URL + `/good.json"},
		{"name":"broken","chainIds":[1],"url":"` + srv.URL + `/broken.json"},
		{"name":"down","chainIds":[10],"url":"` + srv.URL + `/down.json"}
	]}`
	require.NoError(t, afero.WriteFile(fs, "index/external.json", []byte(cfg), 0o644))
	return store, srv
}

func noKeepAlive() *httpx.Client {
	return httpx.NewClient(
		httpx.WithHTTPClient(&http.Client{Transport: &http.Transport{DisableKeepAlives: true}}),
		httpx.WithRetryPolicy(httpx.NoRetry()),
	)
}

func TestChecker_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, srv := setup(t)
	defer srv.Close()

	report, err := NewChecker(store, noKeepAlive(), false, quiet()).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 3)

	good := report.Results[0]
	require.NoError(t, good.Err)
	assert.Equal(t, len(goodList), good.Size)
	assert.Equal(t, idhash.ContentHash([]byte(goodList)), good.Hash)
	assert.False(t, good.Saved)

	assert.ErrorContains(t, report.Results[1].Err, "invalid json")
	assert.True(t, domain.IsTransport(report.Results[2].Err))
	assert.Equal(t, 2, report.Failed())
	assert.Equal(t, len(goodList), report.TotalBytes())

	ok, err := afero.DirExists(store.Fs(), "index/_external")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChecker_Save(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, srv := setup(t)
	defer srv.Close()

	report, err := NewChecker(store, noKeepAlive(), true, quiet()).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Results[0].Saved)
	assert.False(t, report.Results[1].Saved)

	data, err := afero.ReadFile(store.Fs(), "index/_external/good.json")
	require.NoError(t, err)
	assert.Equal(t, `{
  "name": "Good",
  "tokens": [
    {
      "chainId": 1,
      "address": "0x1"
    }
  ]
}
`, string(data))

	_, err = afero.ReadFile(store.Fs(), "index/_external/broken.json")
	assert.Error(t, err)
}

func TestChecker_MissingConfig(t *testing.T) {
	store := fsstore.New(afero.NewMemMapFs(), "index")
	_, err := NewChecker(store, noKeepAlive(), false, quiet()).Run(context.Background())
	assert.Error(t, err)
}
