package types

// Session is one continuous conversation with an ordered message history.
type Session struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"projectID"`
	Directory string      `json:"directory"`
	Title     string      `json:"title"`
	ParentID  *string     `json:"parentID,omitempty"`
	Time      SessionTime `json:"time"`
}

// SessionTime carries session timestamps in Unix millis. Compacting is set
// while a compaction pass is running.
type SessionTime struct {
	Created    int64  `json:"created"`
	Updated    int64  `json:"updated"`
	Compacting *int64 `json:"compacting,omitempty"`
}

// Model describes a model offered by a provider. ContextWindow is the
// total token budget the compactor guards.
type Model struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	ProviderID      string `json:"providerID"`
	ContextWindow   int    `json:"contextWindow"`
	MaxOutputTokens int    `json:"maxOutputTokens"`
	SupportsTools   bool   `json:"supportsTools"`
}
