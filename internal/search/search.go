package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Snippet      string `json:"snippet"`
	Organization string `json:"organization"`
	Status       string `json:"status"`
}

// Query describes a search request.
type Query struct {
	Text         string
	FilterStatus string // empty = all statuses
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a grant search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// GrantRecord is the data we index for a grant.
type GrantRecord struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Organization string `json:"organization"`
	Status       string `json:"status"`
}
