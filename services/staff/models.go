// Package staff serves staff members, their tasks and task performance.
package staff

import (
	"strings"
	"time"
)

const (
	staffTable = "staff"
	tasksTable = "staff_tasks"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Task statuses.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskCancelled  = "cancelled"
)

var (
	priorities    = map[string]bool{PriorityLow: true, PriorityMedium: true, PriorityHigh: true, PriorityUrgent: true}
	taskStatuses  = map[string]bool{TaskPending: true, TaskInProgress: true, TaskCompleted: true, TaskCancelled: true}
	priorityNames = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
	statusNames   = []string{TaskPending, TaskInProgress, TaskCompleted, TaskCancelled}
)

// Member is a row of staff.
type Member struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	Department  string   `json:"department"`
	Position    string   `json:"position"`
	Salary      float64  `json:"salary"`
	HireDate    string   `json:"hire_date"`
	Permissions []string `json:"permissions"`
	IsActive    bool     `json:"is_active"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// MemberInput is the body of POST /staff.
type MemberInput struct {
	UserID      string   `json:"user_id"`
	Department  string   `json:"department"`
	Position    string   `json:"position"`
	Salary      float64  `json:"salary"`
	HireDate    string   `json:"hire_date"`
	Permissions []string `json:"permissions"`
}

func (in *MemberInput) validate() string {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return "user_id is required"
	case strings.TrimSpace(in.Department) == "":
		return "department is required"
	case strings.TrimSpace(in.Position) == "":
		return "position is required"
	case in.Salary < 0:
		return "salary must not be negative"
	case !validDate(in.HireDate):
		return "hire_date must be YYYY-MM-DD"
	}
	return ""
}

// MemberUpdate is a partial staff update.
type MemberUpdate struct {
	Department  *string   `json:"department"`
	Position    *string   `json:"position"`
	Salary      *float64  `json:"salary"`
	Permissions *[]string `json:"permissions"`
	IsActive    *bool     `json:"is_active"`
}

func (u *MemberUpdate) changes() (map[string]interface{}, string) {
	out := make(map[string]interface{})
	if u.Department != nil {
		out["department"] = *u.Department
	}
	if u.Position != nil {
		out["position"] = *u.Position
	}
	if u.Salary != nil {
		if *u.Salary < 0 {
			return nil, "salary must not be negative"
		}
		out["salary"] = *u.Salary
	}
	if u.Permissions != nil {
		out["permissions"] = *u.Permissions
	}
	if u.IsActive != nil {
		out["is_active"] = *u.IsActive
	}
	return out, ""
}

// MemberFilter narrows GET /staff.
type MemberFilter struct {
	Department string
	Position   string
	IsActive   *bool
}

// Task is a row of staff_tasks.
type Task struct {
	ID          string  `json:"id"`
	AssignedTo  string  `json:"assigned_to"`
	AssignedBy  string  `json:"assigned_by"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    string  `json:"priority"`
	Status      string  `json:"status"`
	Progress    int     `json:"progress"`
	DueDate     *string `json:"due_date"`
	Category    string  `json:"category"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// TaskInput is the body of POST /staff/tasks.
type TaskInput struct {
	AssignedTo  string  `json:"assigned_to"`
	AssignedBy  string  `json:"assigned_by"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    string  `json:"priority"`
	DueDate     *string `json:"due_date"`
	Category    string  `json:"category"`
}

func (in *TaskInput) validate() string {
	switch {
	case strings.TrimSpace(in.AssignedTo) == "":
		return "assigned_to is required"
	case strings.TrimSpace(in.AssignedBy) == "":
		return "assigned_by is required"
	case strings.TrimSpace(in.Title) == "":
		return "title is required"
	case !priorities[in.Priority]:
		return "priority must be one of " + strings.Join(priorityNames, ", ")
	case strings.TrimSpace(in.Category) == "":
		return "category is required"
	case in.DueDate != nil && !validDate(*in.DueDate):
		return "due_date must be YYYY-MM-DD"
	}
	return ""
}

// TaskUpdate is a partial task update.
type TaskUpdate struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	DueDate     *string `json:"due_date"`
	Status      *string `json:"status"`
	Progress    *int    `json:"progress"`
}

func (u *TaskUpdate) changes() (map[string]interface{}, string) {
	out := make(map[string]interface{})
	if u.Title != nil {
		out["title"] = *u.Title
	}
	if u.Description != nil {
		out["description"] = *u.Description
	}
	if u.Priority != nil {
		if !priorities[*u.Priority] {
			return nil, "priority must be one of " + strings.Join(priorityNames, ", ")
		}
		out["priority"] = *u.Priority
	}
	if u.DueDate != nil {
		if !validDate(*u.DueDate) {
			return nil, "due_date must be YYYY-MM-DD"
		}
		out["due_date"] = *u.DueDate
	}
	if u.Status != nil {
		if !taskStatuses[*u.Status] {
			return nil, "status must be one of " + strings.Join(statusNames, ", ")
		}
		out["status"] = *u.Status
	}
	if u.Progress != nil {
		if *u.Progress < 0 || *u.Progress > 100 {
			return nil, "progress must be between 0 and 100"
		}
		out["progress"] = *u.Progress
	}
	return out, ""
}

// TaskFilter narrows GET /staff/tasks.
type TaskFilter struct {
	AssignedTo string
	AssignedBy string
	Status     string
	Priority   string
	Category   string
}

// Performance summarises the tasks assigned to one staff member.
type Performance struct {
	TotalTasks      int     `json:"total_tasks"`
	CompletedTasks  int     `json:"completed_tasks"`
	PendingTasks    int     `json:"pending_tasks"`
	InProgressTasks int     `json:"in_progress_tasks"`
	CompletionRate  float64 `json:"completion_rate"`
}

// Summarize counts tasks by status. CompletionRate is a percentage and zero
// when there are no tasks.
func Summarize(tasks []Task) Performance {
	p := Performance{TotalTasks: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case TaskCompleted:
			p.CompletedTasks++
		case TaskPending:
			p.PendingTasks++
		case TaskInProgress:
			p.InProgressTasks++
		}
	}
	if p.TotalTasks > 0 {
		p.CompletionRate = float64(p.CompletedTasks) / float64(p.TotalTasks) * 100
	}
	return p
}

func validDate(s string) bool {
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}
