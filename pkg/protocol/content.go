package protocol

// Role is the speaker of a message in prompts and sampling
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Content type discriminators
const (
	ContentTypeText     = "text"
	ContentTypeImage    = "image"
	ContentTypeResource = "resource"
)

// Annotations hint how a client should use an object
type Annotations struct {
	Audience []Role  `json:"audience,omitempty"`
	Priority float64 `json:"priority,omitempty"`
}

// Content is a tagged union of text, image and embedded resource content.
// Type selects which members are meaningful.
type Content struct {
	Type        string            `json:"type"`
	Text        string            `json:"text,omitempty"`
	Data        string            `json:"data,omitempty"`
	MimeType    string            `json:"mimeType,omitempty"`
	Resource    *ResourceContents `json:"resource,omitempty"`
	Annotations *Annotations      `json:"annotations,omitempty"`
}

// NewTextContent returns text content
func NewTextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

// NewImageContent returns base64-encoded image content
func NewImageContent(data, mimeType string) Content {
	return Content{Type: ContentTypeImage, Data: data, MimeType: mimeType}
}

// NewEmbeddedResource wraps resource contents as content
func NewEmbeddedResource(rc ResourceContents) Content {
	return Content{Type: ContentTypeResource, Resource: &rc}
}
