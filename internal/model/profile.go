package model

import "time"

// Profile is a saved targeting profile (ideal customer profile) built up
// through conversation and persisted by the save_icp tool.
type Profile struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Industry     string    `json:"industry,omitempty"`
	CompanySize  string    `json:"company_size,omitempty"`
	JobTitles    string    `json:"job_titles,omitempty"`
	Geography    string    `json:"geography,omitempty"`
	RevenueRange string    `json:"revenue_range,omitempty"`
	Keywords     string    `json:"keywords,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}
