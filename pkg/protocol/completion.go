package protocol

// MaxCompletionValues caps the values a completion result may carry
const MaxCompletionValues = 100

// Reference types for completion/complete
const (
	RefPrompt   = "ref/prompt"
	RefResource = "ref/resource"
)

// CompletionReference points at the prompt or resource template being
// completed
type CompletionReference struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	URI  string `json:"uri,omitempty"`
}

// CompletionArgument is the argument being completed
type CompletionArgument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CompleteParams defines parameters for completion/complete
type CompleteParams struct {
	Ref      CompletionReference `json:"ref"`
	Argument CompletionArgument  `json:"argument"`
}

// Completion is the set of suggested values
type Completion struct {
	Values  []string `json:"values"`
	Total   *int     `json:"total,omitempty"`
	HasMore bool     `json:"hasMore,omitempty"`
}

// CompleteResult defines the response for completion/complete
type CompleteResult struct {
	Completion Completion `json:"completion"`
}

// Truncate enforces MaxCompletionValues, recording the original size in
// Total and setting HasMore when values were dropped.
func (c *Completion) Truncate() {
	if len(c.Values) <= MaxCompletionValues {
		return
	}
	if c.Total == nil {
		total := len(c.Values)
		c.Total = &total
	}
	c.Values = c.Values[:MaxCompletionValues]
	c.HasMore = true
}
