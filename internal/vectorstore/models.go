package vectorstore

import "fmt"

// Document represents a chunk to be stored in a client's collection.
type Document struct {
	// ID is the unique identifier for the document. For ingested chunks it
	// is derived from document name, chunk id and a content fingerprint, so
	// re-ingesting identical content upserts instead of duplicating.
	ID string

	// Content is the chunk text.
	Content string

	// Metadata contains additional key-value pairs. Values that are not
	// strings, numbers or booleans are coerced to their string
	// representation at the storage boundary.
	Metadata map[string]interface{}
}

// SearchResult represents one retrieval result. Results are ephemeral,
// produced fresh per query and never persisted.
type SearchResult struct {
	// ID is the document identifier.
	ID string `json:"id"`

	// Content is the chunk text.
	Content string `json:"text"`

	// Score is the similarity score. Higher means more relevant; the exact
	// numeric range is backend-dependent (cosine similarity for both
	// bundled backends) and should be treated as monotonic only.
	Score float32 `json:"score"`

	// Metadata contains the stored chunk metadata.
	Metadata map[string]interface{} `json:"metadata"`
}

// convertMetadataToString coerces metadata values to strings, the only
// value type the chromem backend persists.
func convertMetadataToString(metadata map[string]interface{}) map[string]string {
	if metadata == nil {
		return nil
	}

	result := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = fmt.Sprintf("%d", val)
		case int64:
			result[k] = fmt.Sprintf("%d", val)
		case float64:
			result[k] = fmt.Sprintf("%f", val)
		case bool:
			result[k] = fmt.Sprintf("%t", val)
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

// convertMetadataFromString converts stored metadata back to the generic
// map shape used by callers.
func convertMetadataFromString(metadata map[string]string) map[string]interface{} {
	if metadata == nil {
		return nil
	}

	result := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}
