package model

import "time"

// JobStatus is the lifecycle state of a scrape job
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ScrapeJob tracks one execution of a store's scraping pipeline
type ScrapeJob struct {
	ID            string     `json:"id" db:"id"`
	StoreID       string     `json:"store_id" db:"store_id"`
	StoreCode     string     `json:"store_code" db:"store_code"`
	Status        JobStatus  `json:"status" db:"status"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	TotalProducts int        `json:"total_products" db:"total_products"`
	SuccessCount  int        `json:"success_count" db:"success_count"`
	ErrorCount    int        `json:"error_count" db:"error_count"`
	ErrorMessages []string   `json:"error_messages" db:"error_messages"`
}

// Clone returns a deep copy of the job
func (j *ScrapeJob) Clone() *ScrapeJob {
	if j == nil {
		return nil
	}
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	cp.ErrorMessages = append([]string(nil), j.ErrorMessages...)
	return &cp
}
