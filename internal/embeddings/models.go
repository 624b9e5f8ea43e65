package embeddings

// knownModelDimensions maps supported embedding models to their output
// dimensions. Keys cover both HuggingFace-style names and the short names
// fastembed uses internally.
var knownModelDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"fast-bge-small-en-v1.5":                 384,
	"fast-bge-small-en":                      384,
	"fast-bge-base-en-v1.5":                  768,
	"fast-bge-base-en":                       768,
	"fast-bge-small-zh-v1.5":                 512,
	"fast-all-MiniLM-L6-v2":                  384,
}

// fastEmbedDimension reports the dimension for a known model name.
func fastEmbedDimension(model string) (int, bool) {
	dim, ok := knownModelDimensions[model]
	return dim, ok
}
