package protocol

// ProtocolVersion is the latest protocol revision this module speaks
const ProtocolVersion = "2024-11-05"

// SupportedProtocolVersions lists every revision a session will accept,
// newest first.
var SupportedProtocolVersions = []string{ProtocolVersion}

// IsSupportedVersion reports whether v is one of SupportedProtocolVersions
func IsSupportedVersion(v string) bool {
	for _, s := range SupportedProtocolVersions {
		if s == v {
			return true
		}
	}
	return false
}

// Lifecycle and utility methods
const (
	MethodInitialize        = "initialize"
	MethodPing              = "ping"
	NotificationInitialized = "notifications/initialized"
	NotificationCancelled   = "notifications/cancelled"
	NotificationProgress    = "notifications/progress"
)

// Server feature methods
const (
	MethodListResources             = "resources/list"
	MethodListResourceTemplates     = "resources/templates/list"
	MethodReadResource              = "resources/read"
	MethodSubscribe                 = "resources/subscribe"
	MethodUnsubscribe               = "resources/unsubscribe"
	NotificationResourceListChanged = "notifications/resources/list_changed"
	NotificationResourceUpdated     = "notifications/resources/updated"

	MethodListPrompts             = "prompts/list"
	MethodGetPrompt               = "prompts/get"
	NotificationPromptListChanged = "notifications/prompts/list_changed"

	MethodListTools             = "tools/list"
	MethodCallTool              = "tools/call"
	NotificationToolListChanged = "notifications/tools/list_changed"

	MethodComplete      = "completion/complete"
	MethodSetLevel      = "logging/setLevel"
	NotificationMessage = "notifications/message"
)

// Client feature methods
const (
	MethodCreateMessage          = "sampling/createMessage"
	MethodListRoots              = "roots/list"
	NotificationRootsListChanged = "notifications/roots/list_changed"
)

// Sender identifies which peer may originate a method
type Sender int

const (
	SenderClient Sender = 1 << iota
	SenderServer
	SenderBoth = SenderClient | SenderServer
)

// MethodInfo describes one entry of the method catalogue
type MethodInfo struct {
	Name         string
	Notification bool
	Sender       Sender
	Paginated    bool
}

var catalogue = map[string]MethodInfo{
	MethodInitialize:        {Name: MethodInitialize, Sender: SenderClient},
	MethodPing:              {Name: MethodPing, Sender: SenderBoth},
	NotificationInitialized: {Name: NotificationInitialized, Notification: true, Sender: SenderClient},
	NotificationCancelled:   {Name: NotificationCancelled, Notification: true, Sender: SenderBoth},
	NotificationProgress:    {Name: NotificationProgress, Notification: true, Sender: SenderBoth},

	MethodListResources:             {Name: MethodListResources, Sender: SenderClient, Paginated: true},
	MethodListResourceTemplates:     {Name: MethodListResourceTemplates, Sender: SenderClient, Paginated: true},
	MethodReadResource:              {Name: MethodReadResource, Sender: SenderClient},
	MethodSubscribe:                 {Name: MethodSubscribe, Sender: SenderClient},
	MethodUnsubscribe:               {Name: MethodUnsubscribe, Sender: SenderClient},
	NotificationResourceListChanged: {Name: NotificationResourceListChanged, Notification: true, Sender: SenderServer},
	NotificationResourceUpdated:     {Name: NotificationResourceUpdated, Notification: true, Sender: SenderServer},

	MethodListPrompts:             {Name: MethodListPrompts, Sender: SenderClient, Paginated: true},
	MethodGetPrompt:               {Name: MethodGetPrompt, Sender: SenderClient},
	NotificationPromptListChanged: {Name: NotificationPromptListChanged, Notification: true, Sender: SenderServer},

	MethodListTools:             {Name: MethodListTools, Sender: SenderClient, Paginated: true},
	MethodCallTool:              {Name: MethodCallTool, Sender: SenderClient},
	NotificationToolListChanged: {Name: NotificationToolListChanged, Notification: true, Sender: SenderServer},

	MethodComplete:      {Name: MethodComplete, Sender: SenderClient},
	MethodSetLevel:      {Name: MethodSetLevel, Sender: SenderClient},
	NotificationMessage: {Name: NotificationMessage, Notification: true, Sender: SenderServer},

	MethodCreateMessage:          {Name: MethodCreateMessage, Sender: SenderServer},
	MethodListRoots:              {Name: MethodListRoots, Sender: SenderServer},
	NotificationRootsListChanged: {Name: NotificationRootsListChanged, Notification: true, Sender: SenderClient},
}

// LookupMethod returns the catalogue entry for a method name. Unknown names
// are not an error at this layer; the dispatcher answers them.
func LookupMethod(name string) (MethodInfo, bool) {
	info, ok := catalogue[name]
	return info, ok
}

// AllowedBeforeReady reports whether a method may cross the wire before the
// handshake has completed.
func AllowedBeforeReady(method string) bool {
	switch method {
	case MethodInitialize, MethodPing,
		NotificationInitialized, NotificationCancelled, NotificationProgress, NotificationMessage:
		return true
	}
	return false
}

// Supports reports whether the server capability record admits a
// client-originated request or a server-originated notification. The
// returned name identifies the capability that was checked.
func (c *ServerCapabilities) Supports(method string) (string, bool) {
	if c == nil {
		c = &ServerCapabilities{}
	}
	switch method {
	case MethodListTools, MethodCallTool:
		return "tools", c.Tools != nil
	case NotificationToolListChanged:
		return "tools.listChanged", c.Tools != nil && c.Tools.ListChanged
	case MethodListResources, MethodListResourceTemplates, MethodReadResource:
		return "resources", c.Resources != nil
	case MethodSubscribe, MethodUnsubscribe, NotificationResourceUpdated:
		return "resources.subscribe", c.Resources != nil && c.Resources.Subscribe
	case NotificationResourceListChanged:
		return "resources.listChanged", c.Resources != nil && c.Resources.ListChanged
	case MethodListPrompts, MethodGetPrompt:
		return "prompts", c.Prompts != nil
	case NotificationPromptListChanged:
		return "prompts.listChanged", c.Prompts != nil && c.Prompts.ListChanged
	case MethodSetLevel, NotificationMessage:
		return "logging", c.Logging != nil
	case MethodComplete:
		return "prompts|resources", c.Prompts != nil || c.Resources != nil
	}
	return "", true
}

// Supports reports whether the client capability record admits a
// server-originated request or a client-originated notification.
func (c *ClientCapabilities) Supports(method string) (string, bool) {
	if c == nil {
		c = &ClientCapabilities{}
	}
	switch method {
	case MethodCreateMessage:
		return "sampling", c.Sampling != nil
	case MethodListRoots:
		return "roots", c.Roots != nil
	case NotificationRootsListChanged:
		return "roots.listChanged", c.Roots != nil && c.Roots.ListChanged
	}
	return "", true
}
