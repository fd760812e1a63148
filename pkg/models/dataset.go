package models

import "time"

// Dataset is an uploaded CSV file.
// Path is what the prompt and the sandbox refer to; LocalPath is where the server keeps it.
type Dataset struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	LocalPath  string    `json:"localPath,omitempty"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Preview is the first rows of a dataset for display.
type Preview struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}
