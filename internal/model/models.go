package model

import (
	"time"
)

// Run triggers
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
)

type Keyword struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Text      string    `json:"text" gorm:"size:255;not null;uniqueIndex"`
	Slug      string    `json:"slug" gorm:"size:255;not null"`
	Active    bool      `json:"active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Run struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	UUID            string     `json:"uuid" gorm:"size:64;uniqueIndex"`
	Trigger         string     `json:"trigger" gorm:"size:50;not null"`              // manual, schedule, cli
	Status          string     `json:"status" gorm:"size:50;default:pending"`        // pending, running, cleaning, publishing, succeeded, failed, canceled
	Country         string     `json:"country" gorm:"size:10"`
	Headless        bool       `json:"headless"`
	WaitTime        int        `json:"wait_time"`
	TotalKeywords   int        `json:"total_keywords" gorm:"default:0"`
	SucceededTasks  int        `json:"succeeded_tasks" gorm:"default:0"`
	FailedTasks     int        `json:"failed_tasks" gorm:"default:0"`
	SuggestionCount int        `json:"suggestion_count" gorm:"default:0"`
	QuestionCount   int        `json:"question_count" gorm:"default:0"`
	RelatedCount    int        `json:"related_count" gorm:"default:0"`
	CommitHash      string     `json:"commit_hash" gorm:"size:64"`
	ErrorMsg        string     `json:"error_msg" gorm:"size:1000"`
	StartedAt       *time.Time `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Tasks           []Task     `json:"tasks,omitempty" gorm:"foreignKey:RunID"`
}

type Task struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	RunID           uint       `json:"run_id" gorm:"index;not null"`
	KeywordID       uint       `json:"keyword_id" gorm:"index"`
	Keyword         string     `json:"keyword" gorm:"size:255;not null"` // text snapshot, keeps task readable after keyword edits
	Status          string     `json:"status" gorm:"size:50;default:pending"` // pending, queued, running, succeeded, failed, canceled
	ErrorMsg        string     `json:"error_msg" gorm:"size:1000"`
	SuggestionCount int        `json:"suggestion_count" gorm:"default:0"`
	QuestionCount   int        `json:"question_count" gorm:"default:0"`
	RelatedCount    int        `json:"related_count" gorm:"default:0"`
	OutputFile      string     `json:"output_file" gorm:"size:500"`
	StartedAt       *time.Time `json:"started_at" gorm:"column:started_at"`
	CompletedAt     *time.Time `json:"completed_at" gorm:"column:completed_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Result mirrors the harvested payload of one keyword. The JSON artifact
// under the data directory is the canonical copy; this row backs the API.
type Result struct {
	ID                  uint      `json:"id" gorm:"primaryKey"`
	RunID               uint      `json:"run_id" gorm:"index;not null"`
	TaskID              uint      `json:"task_id" gorm:"index;not null"`
	Keyword             string    `json:"keyword" gorm:"size:255;not null"`
	Autocomplete        string    `json:"autocomplete" gorm:"type:text"`            // JSON array
	PeopleAlsoAsk       string    `json:"people_also_ask" gorm:"type:text"`         // JSON array
	PeopleAlsoSearchFor string    `json:"people_also_search_for" gorm:"type:text"`  // JSON array
	CapturedAt          time.Time `json:"captured_at"`
	CreatedAt           time.Time `json:"created_at"`
}
