package domain

// IndexNoteKey is the provenance key written at the top of the index document.
const IndexNoteKey = "!!NOTE!!"

// Reserved file names at the index root; never treated as chain folders.
const (
	IndexFileName      = "index.json"
	DeprecatedFileName = "deprecated.json"
	ExternalFileName   = "external.json"
)

// IndexDocument is the global catalog of every list file and its content hash.
type IndexDocument struct {
	Note  string                 `json:"!!NOTE!!"`
	Index map[string]ChainFolder `json:"index"`
}

// ChainFolder describes one folder of the index.
// TokenLists maps file name to hex SHA-256 of the file bytes.
type ChainFolder struct {
	Deprecated bool              `json:"deprecated,omitempty"`
	ChainID    uint64            `json:"chainId"`
	TokenLists map[string]string `json:"tokenLists"`
}

// DeprecatedConfig is the content of deprecated.json.
type DeprecatedConfig struct {
	Deprecated []string `json:"deprecated"`
}

// ExternalConfig is the content of external.json.
type ExternalConfig struct {
	ExternalTokenLists []ExternalTokenList `json:"externalTokenLists"`
}

// ExternalTokenList points to a token list maintained outside the registry.
type ExternalTokenList struct {
	Name     string   `json:"name"`
	ChainIDs []uint64 `json:"chainIds"`
	URL      string   `json:"url"`
}
