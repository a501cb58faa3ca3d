package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xsequence/token-directory/internal/domain"
)

func TestDecodeList_EmptyKeywordsRoundTrip(t *testing.T) {
	in := `{
  "name": "sequence-erc20-base",
  "chainId": 8453,
  "logoURI": "",
  "keywords": [],
  "tokens": []
}
`
	list, err := DecodeList("base/erc20.json", []byte(in))
	require.NoError(t, err)
	assert.NotNil(t, list.Keywords)

	out, err := EncodeJSON(list)
	require.NoError(t, err)
	assert.Equal(t, in, string(out))
}

func TestDecodeList_MissingKeywordsWrittenEmpty(t *testing.T) {
	list, err := DecodeList("base/erc20.json", []byte(`{"name":"x","chainId":1,"logoURI":"","tokens":[]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{}, list.Keywords)

	out, err := EncodeJSON(domain.TokenList{Name: "x", ChainID: 1})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"keywords": []`)
	assert.Contains(t, string(out), `"tokens": []`)
}
