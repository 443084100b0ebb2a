package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/grouperhq/grouper/internal/auth"
	"github.com/grouperhq/grouper/internal/db"
	"github.com/grouperhq/grouper/internal/models"
	"github.com/grouperhq/grouper/internal/notify"
	"github.com/grouperhq/grouper/internal/plan"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return gormDB
}

type testEnv struct {
	server   *Server
	router   *gin.Engine
	db       *gorm.DB
	notifier *notify.Mock
}

func newTestEnv(t *testing.T, opts GeneratorTestOpts) *testEnv {
	t.Helper()
	gormDB := testDB(t)
	mock := &notify.Mock{}

	genOpts := plan.GeneratorOpts{UseStub: opts.Backend == nil, Backend: opts.Backend}
	srv, err := New(Opts{
		DB:             gormDB,
		Verifier:       auth.StaticVerifier{"tok-1": "user-1", "tok-2": "user-2"},
		Generator:      plan.NewGenerator(genOpts),
		Notifier:       mock,
		Model:          "gpt-4o-mini",
		AllowDebugSkip: opts.AllowDebugSkip,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testEnv{server: srv, router: srv.Router(), db: gormDB, notifier: mock}
}

// GeneratorTestOpts tweaks the environment per test.
type GeneratorTestOpts struct {
	Backend        plan.Backend
	AllowDebugSkip bool
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, decoded
}

func createBody(groupSize int) map[string]interface{} {
	return map[string]interface{}{
		"name":               "Group essay",
		"description":        "A shared essay",
		"timeframe":          "oneWeek",
		"assignment_details": "Write an essay about rivers.",
		"group_size":         groupSize,
		"member_names":       []string{"Ana", "Ben", "Cleo"},
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, GeneratorTestOpts{})
	w, body := env.do(t, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("code=%d body=%v", w.Code, body)
	}
}

func TestCreateProject_EndToEnd(t *testing.T) {
	env := newTestEnv(t, GeneratorTestOpts{})
	w, body := env.do(t, http.MethodPost, "/api/projects", "tok-1", createBody(3))

	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %v", w.Code, body)
	}
	if body["ok"] != true || body["plan_status"] != "ready" {
		t.Fatalf("body = %v", body)
	}
	projectID, _ := body["project_id"].(string)
	if projectID == "" {
		t.Fatal("missing project_id")
	}
	if body["trace_id"] == "" {
		t.Error("missing trace_id")
	}

	var proj models.Project
	if err := env.db.First(&proj, "id = ?", projectID).Error; err != nil {
		t.Fatalf("load project: %v", err)
	}
	if proj.PlanStatus != models.PlanStatusReady {
		t.Errorf("plan_status = %q", proj.PlanStatus)
	}
	if proj.JoinCode == "" {
		t.Error("join code not allocated")
	}
	if proj.PlanPayload == "" {
		t.Error("plan payload not stored")
	}

	var bundles []models.TaskBundle
	env.db.Find(&bundles, "project_id = ?", projectID)
	if len(bundles) != 3 {
		t.Fatalf("bundle count = %d, want 3", len(bundles))
	}
	for _, b := range bundles {
		var n int64
		env.db.Model(&models.Task{}).Where("bundle_id = ?", b.ID).Count(&n)
		if n != 5 {
			t.Errorf("bundle %s has %d tasks, want 5", b.Label, n)
		}
	}

	// Creator member plus two planned members.
	var memberCount, plannedCount int64
	env.db.Model(&models.ProjectMember{}).Where("project_id = ?", projectID).Count(&memberCount)
	env.db.Model(&models.PlannedMember{}).Where("project_id = ?", projectID).Count(&plannedCount)
	if memberCount != 1 || plannedCount != 2 {
		t.Errorf("members = %d planned = %d", memberCount, plannedCount)
	}

	var audit models.GenerationAudit
	if err := env.db.First(&audit, "project_id = ?", projectID).Error; err != nil {
		t.Fatalf("load audit: %v", err)
	}
	if audit.Status != models.PlanStatusReady || audit.PromptVersion != plan.PromptVersion {
		t.Errorf("audit = %+v", audit)
	}
	if audit.InputAssignLen != len("Write an essay about rivers.") {
		t.Errorf("audit assignment length = %d", audit.InputAssignLen)
	}

	sent := env.notifier.Sent()
	if len(sent) != 1 || sent[0].Status != models.PlanStatusReady {
		t.Errorf("notifications = %+v", sent)
	}
}

func TestCreateProject_Unauthorized(t *testing.T) {
	env := newTestEnv(t, GeneratorTestOpts{})

	w, _ := env.do(t, http.MethodPost, "/api/projects", "", createBody(2))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: code = %d", w.Code)
	}
	w, _ = env.do(t, http.MethodPost, "/api/projects", "bogus", createBody(2))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: code = %d", w.Code)
	}

	var n int64
	env.db.Model(&models.Project{}).Count(&n)
	if n != 0 {
		t.Errorf("unauthorized request created %d projects", n)
	}
}

func TestCreateProject_MissingFields(t *testing.T) {
	env := newTestEnv(t, GeneratorTestOpts{})
	body := createBody(2)
	delete(body, "timeframe")

	w, _ := env.do(t, http.MethodPost, "/api/projects", "tok-1", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", w.Code)
	}

	var n int64
	env.db.Model(&models.Project{}).Count(&n)
	if n != 0 {
		t.Errorf("invalid request created %d projects", n)
	}
}

func TestCreateProject_InvalidTimeframe(t *testing.T) {
	env := newTestEnv(t, GeneratorTestOpts{})
	body := createBody(2)
	body["timeframe"] = "someday"

	w, _ := env.do(t, http.MethodPost, "/api/projects", "tok-1", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestCreateProject_AssignmentTooLong(t *testing.T) {
	env := newTestEnv(t, GeneratorTestOpts{})
	body := createBody(2)
	body["assignment_details"] = strings.Repeat("a", 20000)

	w, respBody := env.do(t, http.MethodPost, "/api/projects", "tok-1", body)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", w.Code)
	}
	projectID, _ := respBody["project_id"].(string)
	if projectID == "" {
		t.Fatal("project_id missing: created project must be returned for retry")
	}
	if respBody["plan_status"] != "failed" {
		t.Errorf("plan_status = %v", respBody["plan_status"])
	}

	var proj models.Project
	if err := env.db.First(&proj, "id = ?", projectID).Error; err != nil {
		t.Fatalf("project row missing: %v", err)
	}
	if proj.PlanStatus != models.PlanStatusFailed {
		t.Errorf("plan_status = %q", proj.PlanStatus)
	}
	if !strings.Contains(proj.PlanError, plan.CodeAssignmentTooLong) {
		t.Errorf("plan_error = %q", proj.PlanError)
	}

	// The project stays retryable: shrink the assignment and retry.
	env.db.Model(&models.Project{}).Where("id = ?", projectID).
		Update("assignment_details", "short again")
	w, respBody = env.do(t, http.MethodPost, "/api/projects/retry", "tok-1",
		map[string]interface{}{"project_id": projectID})
	if w.Code != http.StatusOK || respBody["status"] != "ready" {
		t.Fatalf("retry: code=%d body=%v", w.Code, respBody)
	}
}

func TestCreateProject_AuditInsertFailureFailsProject(t *testing.T) {
	env := newTestEnv(t, GeneratorTestOpts{})
	if err := env.db.Migrator().DropTable(&models.GenerationAudit{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	w, body := env.do(t, http.MethodPost, "/api/projects", "tok-1", createBody(2))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d, body = %v", w.Code, body)
	}
	projectID, _ := body["project_id"].(string)
	if projectID == "" {
		t.Fatal("missing project_id")
	}
	if body["plan_status"] != "failed" {
		t.Errorf("plan_status = %v", body["plan_status"])
	}

	// The project must land in failed, not dangle in pending where the
	// retry guard would treat it as owned.
	var proj models.Project
	if err := env.db.First(&proj, "id = ?", projectID).Error; err != nil {
		t.Fatalf("load project: %v", err)
	}
	if proj.PlanStatus != models.PlanStatusFailed {
		t.Errorf("plan_status = %q, want failed", proj.PlanStatus)
	}
	if !strings.Contains(proj.PlanError, plan.CodeGenerateOrPersistFailed) {
		t.Errorf("plan_error = %q", proj.PlanError)
	}

	// Once the store recovers, a retry claims the project and succeeds.
	if err := db.AutoMigrate(env.db); err != nil {
		t.Fatalf("recreate table: %v", err)
	}
	w, body = env.do(t, http.MethodPost, "/api/projects/retry", "tok-1",
		map[string]interface{}{"project_id": projectID})
	if w.Code != http.StatusOK || body["status"] != "ready" {
		t.Fatalf("retry: code=%d body=%v", w.Code, body)
	}
}

func TestCreateProject_DebugSkip(t *testing.T) {
	env := newTestEnv(t, GeneratorTestOpts{AllowDebugSkip: true})
	body := createBody(2)
	body["debug_skip_openai"] = true

	w, respBody := env.do(t, http.MethodPost, "/api/projects", "tok-1", body)
	if w.Code != http.StatusOK || respBody["plan_status"] != "ready" {
		t.Fatalf("code=%d body=%v", w.Code, respBody)
	}

	projectID, _ := respBody["project_id"].(string)
	var n int64
	env.db.Model(&models.TaskBundle{}).Where("project_id = ?", projectID).Count(&n)
	if n != 0 {
		t.Errorf("debug skip persisted %d bundles", n)
	}
}

func TestCreateProject_DebugSkipIgnoredWhenDisallowed(t *testing.T) {
	env := newTestEnv(t, GeneratorTestOpts{})
	body := createBody(2)
	body["debug_skip_openai"] = true

	w, respBody := env.do(t, http.MethodPost, "/api/projects", "tok-1", body)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%v", w.Code, respBody)
	}
	projectID, _ := respBody["project_id"].(string)
	var n int64
	env.db.Model(&models.TaskBundle{}).Where("project_id = ?", projectID).Count(&n)
	if n == 0 {
		t.Error("generation should run when debug skip is disallowed")
	}
}

// seedFailedProject creates a project owned by user-1 in failed state.
func seedFailedProject(t *testing.T, env *testEnv) *models.Project {
	t.Helper()
	proj := &models.Project{
		ID:                "proj-retry",
		Name:              "Essay",
		Timeframe:         "oneWeek",
		AssignmentDetails: "Write an essay.",
		GroupSize:         2,
		JoinCode:          "ABC234",
		PlanStatus:        models.PlanStatusFailed,
		PlanError:         "AI_CALL_FAILED: boom",
	}
	if err := env.db.Create(proj).Error; err != nil {
		t.Fatalf("create project: %v", err)
	}
	member := models.ProjectMember{ProjectID: proj.ID, UserID: "user-1"}
	if err := env.db.Create(&member).Error; err != nil {
		t.Fatalf("create member: %v", err)
	}
	return proj
}

func TestRetryPlan_Success(t *testing.T) {
	env := newTestEnv(t, GeneratorTestOpts{})
	proj := seedFailedProject(t, env)

	w, body := env.do(t, http.MethodPost, "/api/projects/retry", "tok-1",
		map[string]interface{}{"project_id": proj.ID})
	if w.Code != http.StatusOK || body["status"] != "ready" {
		t.Fatalf("code=%d body=%v", w.Code, body)
	}
	if body["plan_payload"] == nil {
		t.Error("missing plan_payload")
	}

	var got models.Project
	env.db.First(&got, "id = ?", proj.ID)
	if got.PlanStatus != models.PlanStatusReady || got.PlanError != "" {
		t.Errorf("project = status %q error %q", got.PlanStatus, got.PlanError)
	}

	var bundles int64
	env.db.Model(&models.TaskBundle{}).Where("project_id = ?", proj.ID).Count(&bundles)
	if bundles != 2 {
		t.Errorf("bundle count = %d, want 2", bundles)
	}
}

func TestRetryPlan_Forbidden(t *testing.T) {
	env := newTestEnv(t, GeneratorTestOpts{})
	proj := seedFailedProject(t, env)

	w, _ := env.do(t, http.MethodPost, "/api/projects/retry", "tok-2",
		map[string]interface{}{"project_id": proj.ID})
	if w.Code != http.StatusForbidden {
		t.Fatalf("code = %d, want 403", w.Code)
	}
}

func TestRetryPlan_NotFound(t *testing.T) {
	env := newTestEnv(t, GeneratorTestOpts{})
	// Membership row without a project row.
	member := models.ProjectMember{ProjectID: "ghost", UserID: "user-1"}
	if err := env.db.Create(&member).Error; err != nil {
		t.Fatalf("create member: %v", err)
	}

	w, _ := env.do(t, http.MethodPost, "/api/projects/retry", "tok-1",
		map[string]interface{}{"project_id": "ghost"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", w.Code)
	}
}

func TestRetryPlan_MissingProjectID(t *testing.T) {
	env := newTestEnv(t, GeneratorTestOpts{})
	w, _ := env.do(t, http.MethodPost, "/api/projects/retry", "tok-1", map[string]interface{}{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", w.Code)
	}
}

// countingBackend counts Complete calls and returns a valid plan.
type countingBackend struct {
	calls     int
	groupSize int
}

func (b *countingBackend) Complete(ctx context.Context, prompt string) (map[string]interface{}, error) {
	b.calls++
	raw, err := json.Marshal(plan.StubPlan(plan.TimeframeOneWeek, b.groupSize))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"output_text": string(raw)}, nil
}

func TestRetryPlan_PendingGuard(t *testing.T) {
	backend := &countingBackend{groupSize: 2}
	env := newTestEnv(t, GeneratorTestOpts{Backend: backend})
	proj := seedFailedProject(t, env)
	env.db.Model(&models.Project{}).Where("id = ?", proj.ID).
		Update("plan_status", models.PlanStatusPending)

	w, body := env.do(t, http.MethodPost, "/api/projects/retry", "tok-1",
		map[string]interface{}{"project_id": proj.ID})
	if w.Code != http.StatusOK || body["status"] != "pending" {
		t.Fatalf("code=%d body=%v", w.Code, body)
	}
	if backend.calls != 0 {
		t.Errorf("backend called %d times while pending", backend.calls)
	}
}

func TestRetryPlan_ClaimRaceLoser(t *testing.T) {
	backend := &countingBackend{groupSize: 2}
	env := newTestEnv(t, GeneratorTestOpts{Backend: backend})
	proj := seedFailedProject(t, env)

	// Single connection so the side update below sees the same in-memory
	// database.
	sqlDB, err := env.db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	// Steal the claim between the handler's project load and its conditional
	// update: the first load of a project row flips it to pending from the
	// side, so the handler's own claim matches zero rows.
	stolen := false
	err = env.db.Callback().Query().After("gorm:query").Register("steal_claim", func(tx *gorm.DB) {
		if stolen {
			return
		}
		if _, ok := tx.Statement.Dest.(*models.Project); !ok {
			return
		}
		stolen = true
		tx.Session(&gorm.Session{NewDB: true}).Model(&models.Project{}).
			Where("id = ?", proj.ID).Update("plan_status", models.PlanStatusPending)
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	w, body := env.do(t, http.MethodPost, "/api/projects/retry", "tok-1",
		map[string]interface{}{"project_id": proj.ID})
	if w.Code != http.StatusOK || body["status"] != "pending" {
		t.Fatalf("code=%d body=%v", w.Code, body)
	}
	if backend.calls != 0 {
		t.Errorf("backend called %d times after losing the claim", backend.calls)
	}

	var got models.Project
	env.db.First(&got, "id = ?", proj.ID)
	if got.PlanStatus != models.PlanStatusPending {
		t.Errorf("plan_status = %q, want pending (owned by the winner)", got.PlanStatus)
	}
}

func TestRetryPlan_ReadyWithoutForce(t *testing.T) {
	backend := &countingBackend{groupSize: 2}
	env := newTestEnv(t, GeneratorTestOpts{Backend: backend})
	proj := seedFailedProject(t, env)
	env.db.Model(&models.Project{}).Where("id = ?", proj.ID).Updates(map[string]interface{}{
		"plan_status":  models.PlanStatusReady,
		"plan_payload": `{"bundles": []}`,
	})

	w, body := env.do(t, http.MethodPost, "/api/projects/retry", "tok-1",
		map[string]interface{}{"project_id": proj.ID})
	if w.Code != http.StatusOK || body["status"] != "ready" {
		t.Fatalf("code=%d body=%v", w.Code, body)
	}
	if body["plan_payload"] == nil {
		t.Error("stored payload not returned")
	}
	if backend.calls != 0 {
		t.Errorf("backend called %d times without force", backend.calls)
	}
}

func TestRetryPlan_ForceRegenerates(t *testing.T) {
	backend := &countingBackend{groupSize: 2}
	env := newTestEnv(t, GeneratorTestOpts{Backend: backend})
	proj := seedFailedProject(t, env)
	env.db.Model(&models.Project{}).Where("id = ?", proj.ID).
		Update("plan_status", models.PlanStatusReady)

	w, body := env.do(t, http.MethodPost, "/api/projects/retry", "tok-1",
		map[string]interface{}{"project_id": proj.ID, "force": true})
	if w.Code != http.StatusOK || body["status"] != "ready" {
		t.Fatalf("code=%d body=%v", w.Code, body)
	}
	if backend.calls != 1 {
		t.Errorf("backend called %d times, want 1", backend.calls)
	}
}

func TestRetryPlan_AssignmentTooLong(t *testing.T) {
	env := newTestEnv(t, GeneratorTestOpts{})
	proj := seedFailedProject(t, env)
	env.db.Model(&models.Project{}).Where("id = ?", proj.ID).
		Update("assignment_details", strings.Repeat("a", 20000))

	w, body := env.do(t, http.MethodPost, "/api/projects/retry", "tok-1",
		map[string]interface{}{"project_id": proj.ID})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", w.Code)
	}
	if body["error_code"] != plan.CodeAssignmentTooLong {
		t.Errorf("error_code = %v", body["error_code"])
	}

	// The guard rejects before the claim, so the status is untouched.
	var got models.Project
	env.db.First(&got, "id = ?", proj.ID)
	if got.PlanStatus != models.PlanStatusFailed {
		t.Errorf("plan_status = %q, want failed", got.PlanStatus)
	}
}

func TestRetryPlan_FailureRecordsAudit(t *testing.T) {
	env := newTestEnv(t, GeneratorTestOpts{Backend: failingBackend{}})
	proj := seedFailedProject(t, env)

	w, body := env.do(t, http.MethodPost, "/api/projects/retry", "tok-1",
		map[string]interface{}{"project_id": proj.ID})
	if w.Code != http.StatusOK || body["status"] != "failed" {
		t.Fatalf("code=%d body=%v", w.Code, body)
	}
	if body["error_code"] != plan.CodeAICallFailed {
		t.Errorf("error_code = %v", body["error_code"])
	}

	var audit models.GenerationAudit
	if err := env.db.First(&audit, "project_id = ?", proj.ID).Error; err != nil {
		t.Fatalf("load audit: %v", err)
	}
	if audit.Status != models.PlanStatusFailed || audit.ErrorCode != plan.CodeAICallFailed {
		t.Errorf("audit = %+v", audit)
	}

	sent := env.notifier.Sent()
	if len(sent) != 1 || sent[0].Severity != notify.SeverityError {
		t.Errorf("notifications = %+v", sent)
	}
}

type failingBackend struct{}

func (failingBackend) Complete(ctx context.Context, prompt string) (map[string]interface{}, error) {
	return nil, plan.Errf(plan.CodeAICallFailed, "backend unreachable")
}
