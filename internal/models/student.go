package models

import "time"

// Student represents a learner whose answer sheets can be evaluated.
type Student struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	RollNo    string    `gorm:"size:64" json:"roll_no"`
	Class     string    `gorm:"size:64" json:"class"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
