package main

// Input types for MCP tools. The SDK infers JSON Schema from these structs.
// Pointer types are optional; value types are required.

type recommendationsInput struct {
	Limit *int `json:"limit,omitempty" jsonschema:"Maximum number of recommendations to return (default 20)"`
}

type topicsInput struct {
	TopK *int `json:"top_k,omitempty" jsonschema:"Number of topics to return, strongest long-term weight first (default 20)"`
}

type emptyInput struct{}

type clickInput struct {
	URL      string  `json:"url"                 jsonschema:"The clicked link"`
	Title    *string `json:"title,omitempty"     jsonschema:"Link title, used for topic extraction when the page cannot be fetched"`
	SourceID *string `json:"source_id,omitempty" jsonschema:"rec_id of the recommendation batch the link came from, if any"`
}

type feedbackInput struct {
	ItemID string `json:"item_id" jsonschema:"The item ID from a recommendation"`
	Signal string `json:"signal"  jsonschema:"Either up or down"`
}

type jobInput struct {
	Name string `json:"name" jsonschema:"Job name. Call jobs_list for the available jobs."`
}

type discoverInput struct {
	Limit *int `json:"limit,omitempty" jsonschema:"Number of preview recommendations (default 10)"`
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func strOr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
