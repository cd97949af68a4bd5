package storage

// Entry is one captured moment: the foreground window, the text derived
// from the frame, and that text's embedding.
type Entry struct {
	ID        int64     `json:"id"`
	App       string    `json:"app"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Timestamp int64     `json:"timestamp"`
	Embedding []float32 `json:"-"`
}

// Revision replaces the text and embedding of an existing entry.
type Revision struct {
	ID        int64
	Text      string
	Embedding []float32
}

// Stats summarizes the entry table.
type Stats struct {
	Count          int   `json:"count"`
	FirstTimestamp int64 `json:"first_timestamp"`
	LastTimestamp  int64 `json:"last_timestamp"`
	Apps           int   `json:"unique_apps"`
	Titles         int   `json:"unique_titles"`
}

// ActivityFilter narrows Activities. Zero values disable a condition.
type ActivityFilter struct {
	// Since and Until bound timestamps as [Since, Until).
	Since int64
	Until int64

	// App matches the application name exactly.
	App string

	// Title matches window titles containing the keyword, case-insensitively.
	Title string

	Limit int
}

// AppActivity aggregates the entries of one application.
type AppActivity struct {
	App       string `json:"app"`
	Count     int    `json:"count"`
	FirstSeen int64  `json:"first_seen"`
	LastSeen  int64  `json:"last_seen"`
}
