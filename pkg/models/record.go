package models

// Question is the exercise a student answered.
type Question struct {
	ID            string   `json:"id,omitempty"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
	Explanation   string   `json:"explanation,omitempty"`
	Subject       string   `json:"subject,omitempty"`
}

// SourceRecord is the learning record a job analyzes. Read-only here.
type SourceRecord struct {
	ID            string   `json:"id"`
	Question      Question `json:"question"`
	StudentAnswer string   `json:"student_answer"`
}
