package protocol

// Resource is a readable item known to the server
type Resource struct {
	URI         string       `json:"uri"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	MimeType    string       `json:"mimeType,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

// ResourceTemplate describes a family of resources by RFC 6570 URI template
type ResourceTemplate struct {
	URITemplate string       `json:"uriTemplate"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	MimeType    string       `json:"mimeType,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

// ResourceContents holds either text or a base64 blob for one URI
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ListResourcesParams defines parameters for resources/list
type ListResourcesParams struct {
	PaginatedParams
}

// ListResourcesResult defines the response for resources/list
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
	PaginatedResult
}

// ListResourceTemplatesParams defines parameters for resources/templates/list
type ListResourceTemplatesParams struct {
	PaginatedParams
}

// ListResourceTemplatesResult defines the response for resources/templates/list
type ListResourceTemplatesResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
	PaginatedResult
}

// ReadResourceParams defines parameters for resources/read
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ReadResourceResult defines the response for resources/read
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// SubscribeParams defines parameters for resources/subscribe
type SubscribeParams struct {
	URI string `json:"uri"`
}

// UnsubscribeParams defines parameters for resources/unsubscribe
type UnsubscribeParams struct {
	URI string `json:"uri"`
}

// ResourceUpdatedParams is the payload of notifications/resources/updated
type ResourceUpdatedParams struct {
	URI string `json:"uri"`
}

// ResourceListChangedParams accompanies notifications/resources/list_changed
type ResourceListChangedParams struct{}
