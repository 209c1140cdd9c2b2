package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/serpwatch/serpwatch/internal/eventbus"
	"github.com/serpwatch/serpwatch/internal/model"
	"github.com/serpwatch/serpwatch/internal/repository"
	"github.com/serpwatch/serpwatch/internal/service"
	"github.com/serpwatch/serpwatch/internal/service/cleaner"
	"github.com/serpwatch/serpwatch/internal/service/extractor"
	"github.com/serpwatch/serpwatch/internal/service/statemachine"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Keyword{}, &model.Run{}, &model.Task{}, &model.Result{}))
	return db
}

type fixture struct {
	router      *gin.Engine
	db          *gorm.DB
	runRepo     repository.RunRepository
	taskRepo    repository.TaskRepository
	keywordRepo repository.KeywordRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := setupDB(t)
	runRepo := repository.NewRunRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	keywordRepo := repository.NewKeywordRepository(db)
	resultRepo := repository.NewResultRepository(db)
	bus := eventbus.NewRunEventBus()
	dataDir := t.TempDir()

	factory := func(opts extractor.Options) service.KeywordExtractor { return nil }
	taskSvc := service.NewTaskService(taskRepo, resultRepo, runRepo, bus, dataDir,
		factory, extractor.Options{Country: "us"})
	keywordSvc := service.NewKeywordService(keywordRepo)
	runSvc := service.NewRunService(runRepo, taskRepo, keywordRepo, resultRepo, taskSvc, bus,
		cleaner.New(dataDir), nil, factory, extractor.Options{Country: "us"}, dataDir)

	r := gin.New()
	runHandler := NewRunHandler(runSvc, taskSvc)
	taskHandler := NewTaskHandler(taskSvc)
	keywordHandler := NewKeywordHandler(keywordSvc, "keywords.txt")
	resultHandler := NewResultHandler(resultRepo)

	api := r.Group("/api")
	api.POST("/runs", runHandler.Create)
	api.GET("/runs", runHandler.List)
	api.GET("/runs/:id", runHandler.Get)
	api.GET("/runs/:id/tasks", runHandler.GetTasks)
	api.GET("/keywords", keywordHandler.List)
	api.POST("/keywords", keywordHandler.Create)
	api.PUT("/keywords/:id", keywordHandler.Update)
	api.DELETE("/keywords/:id", keywordHandler.Delete)
	api.GET("/results", resultHandler.List)
	api.GET("/tasks/:id", taskHandler.Get)

	return &fixture{router: r, db: db, runRepo: runRepo, taskRepo: taskRepo, keywordRepo: keywordRepo}
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestKeywordLifecycle(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/api/keywords", gin.H{"text": "coffee maker"})
	require.Equal(t, http.StatusCreated, w.Code)

	var created model.Keyword
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "coffee maker", created.Text)
	assert.Equal(t, "coffee_maker", created.Slug)
	assert.True(t, created.Active)

	// Duplicate is rejected.
	w = doJSON(t, f.router, http.MethodPost, "/api/keywords", gin.H{"text": "coffee maker"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Deactivate.
	w = doJSON(t, f.router, http.MethodPut, "/api/keywords/1", gin.H{"active": false})
	require.Equal(t, http.StatusOK, w.Code)
	var updated model.Keyword
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.False(t, updated.Active)

	// List.
	w = doJSON(t, f.router, http.MethodGet, "/api/keywords", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var keywords []model.Keyword
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &keywords))
	assert.Len(t, keywords, 1)

	// Delete.
	w = doJSON(t, f.router, http.MethodDelete, "/api/keywords/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateRunConflictsWithActiveRun(t *testing.T) {
	f := newFixture(t)

	run := &model.Run{
		UUID:    "active-run",
		Trigger: model.TriggerManual,
		Status:  string(statemachine.RunStatusRunning),
	}
	require.NoError(t, f.runRepo.Create(run))

	w := doJSON(t, f.router, http.MethodPost, "/api/runs", gin.H{"country": "de"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetRunAndTasks(t *testing.T) {
	f := newFixture(t)

	run := &model.Run{UUID: "r1", Trigger: model.TriggerSchedule, Status: "succeeded", TotalKeywords: 1}
	require.NoError(t, f.runRepo.Create(run))
	task := &model.Task{RunID: run.ID, Keyword: "coffee maker", Status: "succeeded"}
	require.NoError(t, f.taskRepo.Create(task))

	w := doJSON(t, f.router, http.MethodGet, "/api/runs/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "r1", got.UUID)

	w = doJSON(t, f.router, http.MethodGet, "/api/runs/1/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tasks []model.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "coffee maker", tasks[0].Keyword)

	w = doJSON(t, f.router, http.MethodGet, "/api/runs/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetTaskNotFound(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.router, http.MethodGet, "/api/tasks/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, f.router, http.MethodGet, "/api/tasks/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResultsRequireKeyword(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.router, http.MethodGet, "/api/results", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
