package staff

import (
	"context"

	"github.com/zavolah/marketplace/infra/supabase"
	"github.com/zavolah/marketplace/internal/httputil"
)

// Repository is the staff data access surface.
type Repository interface {
	ListMembers(ctx context.Context, f MemberFilter, page httputil.Page) ([]Member, error)
	GetMember(ctx context.Context, id string) (*Member, error)
	CreateMember(ctx context.Context, in *MemberInput) (*Member, error)
	UpdateMember(ctx context.Context, id string, changes map[string]interface{}) (*Member, error)
	DistinctMemberValues(ctx context.Context, column string) ([]string, error)

	ListTasks(ctx context.Context, f TaskFilter, page httputil.Page) ([]Task, error)
	AllTasksFor(ctx context.Context, assignee string) ([]Task, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	CreateTask(ctx context.Context, in *TaskInput) (*Task, error)
	UpdateTask(ctx context.Context, id string, changes map[string]interface{}) (*Task, error)
	DeleteTask(ctx context.Context, id string) error
}

var _ Repository = (*SupabaseRepository)(nil)

// SupabaseRepository stores staff rows in the hosted store.
type SupabaseRepository struct {
	client *supabase.Client
}

// NewSupabaseRepository creates a repository over client.
func NewSupabaseRepository(client *supabase.Client) *SupabaseRepository {
	return &SupabaseRepository{client: client}
}

func (r *SupabaseRepository) ListMembers(ctx context.Context, f MemberFilter, page httputil.Page) ([]Member, error) {
	q := r.client.From(staffTable).Select("*")
	if f.Department != "" {
		q = q.Eq("department", f.Department)
	}
	if f.Position != "" {
		q = q.Eq("position", f.Position)
	}
	if f.IsActive != nil {
		q = q.Eq("is_active", *f.IsActive)
	}
	return supabase.List[Member](ctx, q.Order("created_at", supabase.OrderDesc).Page(page.Limit, page.Offset))
}

func (r *SupabaseRepository) GetMember(ctx context.Context, id string) (*Member, error) {
	return supabase.One[Member](ctx, r.client.From(staffTable).Select("*").Eq("id", id))
}

func (r *SupabaseRepository) CreateMember(ctx context.Context, in *MemberInput) (*Member, error) {
	perms := in.Permissions
	if perms == nil {
		perms = []string{}
	}
	return supabase.First[Member](ctx, r.client.From(staffTable).Insert(map[string]interface{}{
		"user_id":     in.UserID,
		"department":  in.Department,
		"position":    in.Position,
		"salary":      in.Salary,
		"hire_date":   in.HireDate,
		"permissions": perms,
		"is_active":   true,
	}))
}

func (r *SupabaseRepository) UpdateMember(ctx context.Context, id string, changes map[string]interface{}) (*Member, error) {
	return supabase.First[Member](ctx, r.client.From(staffTable).Update(changes).Eq("id", id))
}

func (r *SupabaseRepository) DistinctMemberValues(ctx context.Context, column string) ([]string, error) {
	return supabase.Distinct(ctx, r.client.From(staffTable), column)
}

func (r *SupabaseRepository) ListTasks(ctx context.Context, f TaskFilter, page httputil.Page) ([]Task, error) {
	q := r.client.From(tasksTable).Select("*")
	for col, v := range map[string]string{
		"assigned_to": f.AssignedTo,
		"assigned_by": f.AssignedBy,
		"status":      f.Status,
		"priority":    f.Priority,
		"category":    f.Category,
	} {
		if v != "" {
			q = q.Eq(col, v)
		}
	}
	return supabase.List[Task](ctx, q.Order("created_at", supabase.OrderDesc).Page(page.Limit, page.Offset))
}

func (r *SupabaseRepository) AllTasksFor(ctx context.Context, assignee string) ([]Task, error) {
	return supabase.List[Task](ctx, r.client.From(tasksTable).Select("*").Eq("assigned_to", assignee))
}

func (r *SupabaseRepository) GetTask(ctx context.Context, id string) (*Task, error) {
	return supabase.One[Task](ctx, r.client.From(tasksTable).Select("*").Eq("id", id))
}

func (r *SupabaseRepository) CreateTask(ctx context.Context, in *TaskInput) (*Task, error) {
	return supabase.First[Task](ctx, r.client.From(tasksTable).Insert(map[string]interface{}{
		"assigned_to": in.AssignedTo,
		"assigned_by": in.AssignedBy,
		"title":       in.Title,
		"description": in.Description,
		"priority":    in.Priority,
		"due_date":    in.DueDate,
		"category":    in.Category,
		"status":      TaskPending,
		"progress":    0,
	}))
}

func (r *SupabaseRepository) UpdateTask(ctx context.Context, id string, changes map[string]interface{}) (*Task, error) {
	return supabase.First[Task](ctx, r.client.From(tasksTable).Update(changes).Eq("id", id))
}

func (r *SupabaseRepository) DeleteTask(ctx context.Context, id string) error {
	_, err := supabase.First[Task](ctx, r.client.From(tasksTable).Delete().Eq("id", id))
	return err
}
