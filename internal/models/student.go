package models

import "time"

// Student represents one savings account holder. NIS is the human-facing
// account key and stays unique per school; the serial ID is internal only.
type Student struct {
	ID        int       `json:"id" db:"id"`
	NIS       string    `json:"nis" db:"nis"`
	Name      string    `json:"name" db:"name"`
	ClassName string    `json:"class" db:"class_name"`
	PINHash   string    `json:"-" db:"pin_hash"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ClassFilterAll is the sentinel meaning "no class filter".
const ClassFilterAll = "all"
