package staff

import (
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zavolah/marketplace/internal/logging"
	"github.com/zavolah/marketplace/pkg/testutil"
)

func newTestRouter(t *testing.T) (*mux.Router, *testutil.FakeSupabase) {
	t.Helper()
	fake := testutil.NewFakeSupabase(t)
	r := mux.NewRouter()
	NewHandler(NewSupabaseRepository(fake.Client(t)), logging.Discard()).RegisterRoutes(r.PathPrefix("/api").Subrouter())
	return r, fake
}

func seedStaff(fake *testutil.FakeSupabase) {
	fake.Seed("staff",
		testutil.Row{"id": "m1", "user_id": "u1", "department": "design", "position": "lead", "salary": 5000, "hire_date": "2023-01-10", "permissions": []string{"tasks"}, "is_active": true},
		testutil.Row{"id": "m2", "user_id": "u2", "department": "support", "position": "agent", "salary": 2500, "hire_date": "2023-03-01", "permissions": []string{}, "is_active": false},
		testutil.Row{"id": "m3", "user_id": "u3", "department": "design", "position": "junior", "salary": 3000, "hire_date": "2024-02-01", "permissions": []string{}, "is_active": true},
	)
}

func TestListMembers_Filters(t *testing.T) {
	r, fake := newTestRouter(t)
	seedStaff(fake)

	rec := testutil.DoJSON(t, r, http.MethodGet, "/api/staff?department=design&is_active=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	members := testutil.DecodeJSON[[]Member](t, rec)
	require.Len(t, members, 2)
	assert.Equal(t, "m3", members[0].ID)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/staff?is_active=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	members = testutil.DecodeJSON[[]Member](t, rec)
	require.Len(t, members, 1)
	assert.Equal(t, "m2", members[0].ID)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/staff?is_active=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMemberLifecycle(t *testing.T) {
	r, fake := newTestRouter(t)

	rec := testutil.DoJSON(t, r, http.MethodPost, "/api/staff", map[string]interface{}{
		"user_id": "u9", "department": "ops", "position": "analyst", "salary": 4200, "hire_date": "2024-05-01", "permissions": []string{"reports"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	m := testutil.DecodeJSON[Member](t, rec)
	assert.True(t, m.IsActive)
	assert.Equal(t, []string{"reports"}, m.Permissions)

	rec = testutil.DoJSON(t, r, http.MethodPut, "/api/staff/"+m.ID, map[string]interface{}{"position": "senior analyst"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := testutil.DecodeJSON[Member](t, rec)
	assert.Equal(t, "senior analyst", updated.Position)
	assert.Equal(t, "ops", updated.Department)

	rec = testutil.DoJSON(t, r, http.MethodDelete, "/api/staff/"+m.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, fake.Find("staff", m.ID)["is_active"])

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/staff/"+m.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/staff/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = testutil.DoJSON(t, r, http.MethodPost, "/api/staff", map[string]interface{}{
		"user_id": "u9", "department": "ops", "position": "analyst", "hire_date": "May 1st",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDepartmentsAndPositions(t *testing.T) {
	r, fake := newTestRouter(t)
	seedStaff(fake)

	rec := testutil.DoJSON(t, r, http.MethodGet, "/api/staff/departments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string][]string{"departments": {"design", "support"}}, testutil.DecodeJSON[map[string][]string](t, rec))

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/staff/positions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string][]string{"positions": {"agent", "junior", "lead"}}, testutil.DecodeJSON[map[string][]string](t, rec))
}

func TestTaskLifecycle(t *testing.T) {
	r, fake := newTestRouter(t)

	rec := testutil.DoJSON(t, r, http.MethodPost, "/api/staff/tasks", map[string]interface{}{
		"assigned_to": "m1", "assigned_by": "m9", "title": "Review prints", "description": "",
		"priority": "high", "category": "qa", "due_date": "2024-07-01",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	task := testutil.DecodeJSON[Task](t, rec)
	assert.Equal(t, TaskPending, task.Status)
	assert.Equal(t, 0, task.Progress)

	rec = testutil.DoJSON(t, r, http.MethodPut, "/api/staff/tasks/"+task.ID, map[string]interface{}{"status": "in_progress", "progress": 40})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	task = testutil.DecodeJSON[Task](t, rec)
	assert.Equal(t, TaskInProgress, task.Status)
	assert.Equal(t, 40, task.Progress)

	for _, body := range []map[string]interface{}{
		{"progress": 101},
		{"progress": -1},
		{"status": "done"},
		{"priority": "critical"},
	} {
		rec = testutil.DoJSON(t, r, http.MethodPut, "/api/staff/tasks/"+task.ID, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/staff/tasks/"+task.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 40, testutil.DecodeJSON[Task](t, rec).Progress)

	rec = testutil.DoJSON(t, r, http.MethodDelete, "/api/staff/tasks/"+task.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fake.Rows("staff_tasks"))

	rec = testutil.DoJSON(t, r, http.MethodDelete, "/api/staff/tasks/"+task.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateTask_RejectsUnknownPriority(t *testing.T) {
	r, fake := newTestRouter(t)

	rec := testutil.DoJSON(t, r, http.MethodPost, "/api/staff/tasks", map[string]interface{}{
		"assigned_to": "m1", "assigned_by": "m9", "title": "x", "priority": "whenever", "category": "qa",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, fake.Requests())
}

func TestTasksAndPerformance(t *testing.T) {
	r, fake := newTestRouter(t)
	fake.Seed("staff_tasks",
		testutil.Row{"id": "t1", "assigned_to": "m1", "assigned_by": "m9", "title": "a", "priority": "low", "status": "completed", "progress": 100, "category": "qa"},
		testutil.Row{"id": "t2", "assigned_to": "m1", "assigned_by": "m9", "title": "b", "priority": "high", "status": "pending", "progress": 0, "category": "qa"},
		testutil.Row{"id": "t3", "assigned_to": "m1", "assigned_by": "m8", "title": "c", "priority": "high", "status": "in_progress", "progress": 50, "category": "ops"},
		testutil.Row{"id": "t4", "assigned_to": "m1", "assigned_by": "m8", "title": "d", "priority": "urgent", "status": "completed", "progress": 100, "category": "ops"},
		testutil.Row{"id": "t5", "assigned_to": "m2", "assigned_by": "m8", "title": "e", "priority": "low", "status": "pending", "progress": 0, "category": "ops"},
	)

	rec := testutil.DoJSON(t, r, http.MethodGet, "/api/staff/tasks?priority=high&category=ops", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tasks := testutil.DecodeJSON[[]Task](t, rec)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t3", tasks[0].ID)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/staff/m1/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, testutil.DecodeJSON[[]Task](t, rec), 4)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/staff/m1/performance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Performance{TotalTasks: 4, CompletedTasks: 2, PendingTasks: 1, InProgressTasks: 1, CompletionRate: 50}, testutil.DecodeJSON[Performance](t, rec))

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/staff/nobody/performance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Performance{}, testutil.DecodeJSON[Performance](t, rec))
}
