package semanticscholar

// searchResponse is the /paper/search payload.
type searchResponse struct {
	Total  int           `json:"total"`
	Offset int           `json:"offset"`
	Next   int           `json:"next,omitempty"`
	Data   []paperResult `json:"data"`
}

type paperResult struct {
	PaperID       string         `json:"paperId"`
	Title         string         `json:"title"`
	Abstract      *string        `json:"abstract"`
	URL           string         `json:"url"`
	Year          *int           `json:"year"`
	Venue         string         `json:"venue"`
	CitationCount *int           `json:"citationCount"`
	Authors       []author       `json:"authors"`
	OpenAccessPDF *openAccessPDF `json:"openAccessPdf"`
}

type author struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

type openAccessPDF struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
