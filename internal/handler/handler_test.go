package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"aerotool/internal/config"
	"aerotool/internal/geometry"
	"aerotool/internal/logger"
	"aerotool/internal/metrics"
	"aerotool/internal/model"
	"aerotool/internal/repository/sqlite"
	"aerotool/internal/service/detection"
	"aerotool/internal/service/recognition"
	"aerotool/internal/service/storage"

	"github.com/gorilla/mux"
)

var testLogger = logger.NewWithWriter(io.Discard)

type stubDetector struct {
	err error
}

func (d *stubDetector) Detect(_ context.Context, data []byte, opts detection.Options) (*detection.Result, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &detection.Result{
		Detections: []model.Detection{
			{BBox: geometry.Box{1, 2, 30, 40}, Confidence: 0.8, Class: "Pliers", Color: "yellow"},
		},
		ImagePath:        "/static/results/detected_x.jpg",
		ImageSize:        [2]int{64, 48},
		ProcessingTimeMs: 12,
		ImageBase64:      "aW1n",
	}, nil
}

type nopPublisher struct {
	published int
}

func (p *nopPublisher) Publish(*model.RecognitionOperation) { p.published++ }

func newManager(d recognition.Detector) (*recognition.Manager, *nopPublisher) {
	pub := &nopPublisher{}
	return recognition.NewManager(d, pub, nil, recognition.NewSettings(0.5), "Default kit", testLogger), pub
}

func multipartBody(t *testing.T, field string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for name, data := range files {
		part, err := w.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		part.Write(data)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}
	return body, w.FormDataContentType()
}

func TestAtoiDefault(t *testing.T) {
	tests := []struct {
		input    string
		def      int
		expected int
	}{
		{"10", 5, 10},
		{"", 5, 5},
		{"abc", 10, 10},
		{"-1", 5, 5},
		{"0", 5, 5},
		{"12.5", 5, 5},
	}

	for _, tt := range tests {
		result := atoiDefault(tt.input, tt.def)
		if result != tt.expected {
			t.Errorf("atoiDefault(%q, %d) = %d, expected %d", tt.input, tt.def, result, tt.expected)
		}
	}
}

func TestDetectSingleHandler(t *testing.T) {
	manager, pub := newManager(&stubDetector{})
	body, contentType := multipartBody(t, "file", map[string][]byte{"tools.jpg": []byte("jpeg")})

	req := httptest.NewRequest(http.MethodPost, "/detect/single", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	DetectSingleHandler(manager, testLogger)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Operation-ID") == "" {
		t.Error("Expected X-Operation-ID header to be set")
	}

	var result detection.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(result.Detections) != 1 || result.Detections[0].Class != "Pliers" {
		t.Errorf("Unexpected detections: %+v", result.Detections)
	}
	if result.ImageSize != [2]int{64, 48} {
		t.Errorf("Expected image size [64 48], got %v", result.ImageSize)
	}
	if pub.published != 1 {
		t.Errorf("Expected 1 published operation, got %d", pub.published)
	}
}

func TestDetectSingleHandler_RejectsNonImage(t *testing.T) {
	manager, pub := newManager(&stubDetector{})
	body, contentType := multipartBody(t, "file", map[string][]byte{"notes.txt": []byte("text")})

	req := httptest.NewRequest(http.MethodPost, "/detect/single", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	DetectSingleHandler(manager, testLogger)(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
	if pub.published != 0 {
		t.Errorf("Expected nothing published, got %d", pub.published)
	}
}

func TestDetectSingleHandler_ModelFailure(t *testing.T) {
	manager, _ := newManager(&stubDetector{err: errors.New("model 2 failed: boom")})
	body, contentType := multipartBody(t, "file", map[string][]byte{"tools.png": []byte("png")})

	req := httptest.NewRequest(http.MethodPost, "/detect/single", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	DetectSingleHandler(manager, testLogger)(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", rec.Code)
	}
}

func TestDetectMultipleHandler(t *testing.T) {
	manager, _ := newManager(&stubDetector{})
	body, contentType := multipartBody(t, "files", map[string][]byte{
		"a.jpg":     []byte("a"),
		"b.png":     []byte("b"),
		"readme.md": []byte("c"),
	})

	req := httptest.NewRequest(http.MethodPost, "/detect/multiple", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	DetectMultipleHandler(manager, testLogger)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		OperationID string                   `json:"operation_id"`
		Summary     model.Summary            `json:"summary"`
		Results     []recognition.FileResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.OperationID == "" {
		t.Error("Expected operation_id in response")
	}
	if len(resp.Results) != 2 {
		t.Errorf("Expected 2 results, got %d", len(resp.Results))
	}
	if resp.Summary.TotalImages != 2 || resp.Summary.TotalDetectionTime != 24 {
		t.Errorf("Unexpected summary: %+v", resp.Summary)
	}
}

func TestDetectArchiveHandler_RejectsNonZip(t *testing.T) {
	manager, _ := newManager(&stubDetector{})
	body, contentType := multipartBody(t, "file", map[string][]byte{"images.tar": []byte("tar")})

	req := httptest.NewRequest(http.MethodPost, "/detect/archive", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	DetectArchiveHandler(manager, testLogger)(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestSettingsHandlers(t *testing.T) {
	settings := recognition.NewSettings(0.5)

	rec := httptest.NewRecorder()
	GetSettingsHandler(settings, testLogger)(rec, httptest.NewRequest(http.MethodGet, "/settings", nil))
	if !strings.Contains(rec.Body.String(), `"confidence_threshold":0.5`) {
		t.Errorf("Expected threshold 0.5 in body, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/settings", strings.NewReader(`{"confidence_threshold":0.35}`))
	UpdateSettingsHandler(settings, testLogger)(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if settings.Threshold() != 0.35 {
		t.Errorf("Expected threshold 0.35, got %v", settings.Threshold())
	}

	for _, body := range []string{`{"confidence_threshold":0}`, `{"confidence_threshold":1.5}`} {
		rec = httptest.NewRecorder()
		UpdateSettingsHandler(settings, testLogger)(rec, httptest.NewRequest(http.MethodPost, "/settings", strings.NewReader(body)))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("Expected status 422 for %s, got %d", body, rec.Code)
		}
	}

	rec = httptest.NewRecorder()
	UpdateSettingsHandler(settings, testLogger)(rec, httptest.NewRequest(http.MethodPost, "/settings", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing field, got %d", rec.Code)
	}
	if settings.Threshold() != 0.35 {
		t.Errorf("Expected threshold to stay 0.35, got %v", settings.Threshold())
	}
}

func setupDB(t *testing.T) *sqlite.DB {
	t.Helper()

	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func setupStore(t *testing.T) (*sqlite.OperationRepository, *sqlite.ImageRepository) {
	db := setupDB(t)
	return sqlite.NewOperationRepository(db), sqlite.NewImageRepository(db)
}

func storedOperation(t *testing.T, repo *sqlite.OperationRepository, url string) int64 {
	t.Helper()

	images := []model.ImageResult{{
		ImageURL:        url,
		FileName:        "a.jpg",
		DetectionTime:   90,
		ImageConfidence: 0.75,
		Results:         []model.RecognitionResult{{Name: "Pliers", Confidence: 0.75, Color: "yellow"}},
	}}
	id, err := repo.SaveOperation(context.Background(), &model.RecognitionOperation{
		ID:          "op-1",
		Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Toolset:     "Kit A",
		Recognition: 0.5,
		Images:      images,
		Summary:     model.Summarize(images),
	})
	if err != nil {
		t.Fatalf("Failed to save operation: %v", err)
	}
	return id
}

func TestHistoryHandlers(t *testing.T) {
	ops, _ := setupStore(t)
	id := storedOperation(t, ops, "/static/results/a.jpg")

	router := mux.NewRouter()
	router.HandleFunc("/api/history", HistoryHandler(ops, testLogger))
	router.HandleFunc("/api/history/{id}", OperationHandler(ops, testLogger))
	router.HandleFunc("/api/statistics/history", StatisticsHandler(ops, testLogger))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?page=1&limit=5", nil))
	var list struct {
		Operations []model.OperationSummary `json:"operations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}
	if len(list.Operations) != 1 {
		t.Fatalf("Expected 1 operation, got %d", len(list.Operations))
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/"+strconv.FormatInt(id, 10), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var detail struct {
		Operation model.RecognitionOperation `json:"operation"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("Failed to decode operation: %v", err)
	}
	if detail.Operation.Toolset != "Kit A" || len(detail.Operation.Images) != 1 {
		t.Errorf("Unexpected operation: %+v", detail.Operation)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/9999", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/statistics/history", nil))
	var stats model.HistoryStatistics
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Failed to decode statistics: %v", err)
	}
	if stats.TotalOperations != 1 || stats.TotalImages != 1 {
		t.Errorf("Unexpected statistics: %+v", stats)
	}
}

func TestImageHandler(t *testing.T) {
	ops, images := setupStore(t)
	resultsDir := t.TempDir()
	results := storage.NewResultService(&config.Config{ResultsDir: resultsDir}, testLogger)

	if err := os.WriteFile(filepath.Join(resultsDir, "a.jpg"), []byte("jpeg-bytes"), 0644); err != nil {
		t.Fatalf("Failed to write image: %v", err)
	}
	storedOperation(t, ops, "/static/results/a.jpg")
	storedOperation(t, ops, "/static/results/missing.jpg")

	router := mux.NewRouter()
	router.HandleFunc("/api/images/{id}", ImageHandler(images, results, testLogger))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images/1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "jpeg-bytes" {
		t.Errorf("Expected image bytes, got %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Expected Content-Type image/jpeg, got %s", ct)
	}

	for _, path := range []string{"/api/images/2", "/api/images/77"} {
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected status 404 for %s, got %d", path, rec.Code)
		}
	}
}

func TestMetricsHandler(t *testing.T) {
	pub := &metrics.PublisherMetrics{}
	pub.Attempt()
	pub.Failure(errors.New("broker unreachable"))

	rec := httptest.NewRecorder()
	MetricsHandler(pub, nil, testLogger)(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode metrics: %v", err)
	}
	if _, ok := body["consumer"]; ok {
		t.Error("Expected no consumer section without consumer metrics")
	}

	var snap metrics.PublisherSnapshot
	if err := json.Unmarshal(body["publisher"], &snap); err != nil {
		t.Fatalf("Failed to decode publisher snapshot: %v", err)
	}
	if snap.Attempted != 1 || snap.Failed != 1 || snap.LastError != "broker unreachable" {
		t.Errorf("Unexpected publisher snapshot: %+v", snap)
	}
}

func TestLogsHandlers(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{LogDirectory: dir}

	rec := httptest.NewRecorder()
	ShowLogsHandler(cfg, "info.log")(rec, httptest.NewRequest(http.MethodGet, "/logs/info", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for missing log, got %d", rec.Code)
	}

	os.WriteFile(filepath.Join(dir, "info.log"), []byte("line\n"), 0644)
	rec = httptest.NewRecorder()
	ShowLogsHandler(cfg, "info.log")(rec, httptest.NewRequest(http.MethodGet, "/logs/info", nil))
	if rec.Body.String() != "line\n" {
		t.Errorf("Expected log contents, got %q", rec.Body.String())
	}
}

func TestDetectionLookups(t *testing.T) {
	db := setupDB(t)
	ops := sqlite.NewOperationRepository(db)
	id := storedOperation(t, ops, "/static/results/a.jpg")

	router := mux.NewRouter()
	router.HandleFunc("/api/history/{id}/images", OperationImagesHandler(sqlite.NewImageRepository(db), testLogger))
	router.HandleFunc("/api/images/{id}/detections", ImageDetectionsHandler(sqlite.NewDetectionRepository(db), testLogger))
	router.HandleFunc("/api/classes", ClassesHandler(sqlite.NewDetectionRepository(db), testLogger))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/"+strconv.FormatInt(id, 10)+"/images", nil))
	var imgs struct {
		Images []model.ImageResult `json:"images"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &imgs); err != nil {
		t.Fatalf("Failed to decode images: %v", err)
	}
	if len(imgs.Images) != 1 || imgs.Images[0].FileName != "a.jpg" {
		t.Fatalf("Unexpected images: %+v", imgs.Images)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images/"+imgs.Images[0].ImageID+"/detections", nil))
	var dets struct {
		Detections []model.RecognitionResult `json:"detections"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &dets); err != nil {
		t.Fatalf("Failed to decode detections: %v", err)
	}
	if len(dets.Detections) != 1 || dets.Detections[0].Name != "Pliers" {
		t.Errorf("Unexpected detections: %+v", dets.Detections)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/classes", nil))
	if !strings.Contains(rec.Body.String(), `"classes":["Pliers"]`) {
		t.Errorf("Expected Pliers in classes, got %s", rec.Body.String())
	}
}
