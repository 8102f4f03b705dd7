package models

import (
	"time"
)

// Link запись реестра: короткий код -> целевой URL со счётчиком переходов
type Link struct {
	Code        string     `json:"code"`
	TargetURL   string     `json:"targetUrl"`
	Clicks      int64      `json:"clicks"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastClicked *time.Time `json:"lastClicked"`
}

type CreateLinkInput struct {
	TargetURL string  `json:"targetUrl"`
	Code      *string `json:"code,omitempty"`
}
