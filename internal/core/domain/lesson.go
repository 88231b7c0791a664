package domain

import "time"

// Lesson is one recorded quality incident from the lessons_learned table.
type Lesson struct {
	ID                 int64     `json:"id"`
	Commodity          string    `json:"commodity"`
	ErrorLocation      string    `json:"error_location"`
	ProblemDescription string    `json:"problem_description"`
	MissedDetection    string    `json:"missed_detection"`
	ProvidedSolution   string    `json:"provided_solution"`
	Department         string    `json:"department"`
	Severity           Severity  `json:"severity"`
	ReporterName       string    `json:"reporter_name"`
	PartNumber         string    `json:"part_number,omitempty"`
	Supplier           string    `json:"supplier,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// LessonQuery selects candidate lessons for the database source.
type LessonQuery struct {
	Terms      []string
	Department string
	Limit      int
}

// WebHit is a raw hit returned by a web search provider before scoring.
type WebHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
