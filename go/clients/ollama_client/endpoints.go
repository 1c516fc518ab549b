package ollama_client

const (
	DefaultBaseURL = "http://localhost:11434"

	// Paths
	chatPath = "/api/chat"
	tagsPath = "/api/tags"

	// Headers
	ContentTypeHeader = "Content-Type"
	JsonContentType   = "application/json"
)
