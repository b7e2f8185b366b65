package pokt

const (
	apiVersion   = "/v1"
	heightPath   = apiVersion + "/query/height"
	blockPath    = apiVersion + "/query/block"
	blockTxsPath = apiVersion + "/query/blocktxs"
)
