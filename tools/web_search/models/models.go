package models

// Result is one raw provider hit before evidence-kind annotation.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
