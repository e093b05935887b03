package models

import "time"

// Notice is a board announcement. Only Admin and Teacher accounts post.
type Notice struct {
	ID      string    `db:"id" json:"id"`
	Title   string    `db:"title" json:"title"`
	Content string    `db:"content" json:"content"`
	Author  string    `db:"author" json:"author"`
	Role    Role      `db:"role" json:"role"`
	Date    time.Time `db:"posted_at" json:"date"`
}

// Homework is an assignment for one class section.
type Homework struct {
	ID          string    `db:"id" json:"id"`
	Class       string    `db:"class" json:"class"`
	Section     string    `db:"section" json:"section"`
	Subject     string    `db:"subject" json:"subject"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	DueDate     time.Time `db:"due_date" json:"due_date"`
	AssignedBy  string    `db:"assigned_by" json:"assigned_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// HomeworkFilter narrows homework listings; empty fields match everything.
type HomeworkFilter struct {
	Class   string
	Section string
}
