package model

import "time"

type ClickMetadata struct {
	Referrer  string `json:"referrer,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	IP        string `json:"ip,omitempty"`
	Country   string `json:"country,omitempty"`
}

type Click struct {
	ID        int64     `json:"id"`
	LinkID    string    `json:"link_id"`
	ShortCode string    `json:"short_code"`
	ClickedAt time.Time `json:"clicked_at"`
	ClickMetadata
}
