package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/knowthefacts/quality-export/internal/testutil"
	"github.com/knowthefacts/quality-export/pkg/client"
	"github.com/knowthefacts/quality-export/pkg/export"
	"github.com/knowthefacts/quality-export/pkg/secrets"
	"github.com/knowthefacts/quality-export/pkg/storage"
)

const (
	formsPath       = "/api/v2/quality/publishedforms"
	activityPath    = "/api/v2/quality/evaluators/activity"
	evaluationsPath = "/api/v2/quality/evaluations/query"
)

func newExporter(t *testing.T, mock *testutil.MockQualityAPI, dir string) *export.Exporter {
	t.Helper()

	apiClient, err := client.New(client.Config{
		BaseURL:   mock.URL(),
		Tokens:    secrets.Static("integration-token"),
		UserAgent: "quality-export-test/1.0.0",
	})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	return export.New(apiClient, storage.NewLocal(dir), export.Options{PageSize: 2})
}

func readLines(t *testing.T, path string) []string {
	t.Helper()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	return strings.Split(strings.TrimRight(string(content), "\n"), "\n")
}

func TestFormExportEndToEnd(t *testing.T) {
	mock := testutil.NewMockQualityAPI()
	defer mock.Close()

	mock.SetPages(formsPath, `{"entities": [
		{
			"id": "F1",
			"name": "Call scorecard",
			"published": true,
			"questionGroups": [
				{"id": "QG1", "name": "Greeting", "questions": [
					{"id": "Q1", "answerOptions": [{"id": "AO1"}, {"id": "AO2"}]}
				]}
			]
		},
		{"id": "F2", "name": "Draft form", "questionGroups": []}
	]}`)

	dir := t.TempDir()
	exporter := newExporter(t, mock, dir)

	count, err := exporter.ExportForms(context.Background(), export.FormOptions{})
	if err != nil {
		t.Fatalf("ExportForms() error = %v", err)
	}

	// F1 expands to 2 records; F2 has no children and writes no file; the
	// aggregate carries both summaries.
	if count != 4 {
		t.Errorf("count = %d, want 4", count)
	}

	lines := readLines(t, filepath.Join(dir, "questiongroups_F1.jsonl"))
	if len(lines) != 2 {
		t.Errorf("questiongroups_F1.jsonl has %d lines, want 2", len(lines))
	}

	if _, err := os.Stat(filepath.Join(dir, "questiongroups_F2.jsonl")); !os.IsNotExist(err) {
		t.Error("Expected no file for a form with zero question groups")
	}

	summary := readLines(t, filepath.Join(dir, "forms.jsonl"))
	if len(summary) != 2 {
		t.Errorf("forms.jsonl has %d lines, want 2", len(summary))
	}

	if mock.LastAuthHeader != "Bearer integration-token" {
		t.Errorf("Authorization = %q", mock.LastAuthHeader)
	}
}

func TestCollectorEndToEnd(t *testing.T) {
	mock := testutil.NewMockQualityAPI()
	defer mock.Close()

	mock.SetPages(activityPath,
		`{"entities": [{"evaluator": {"id": "ev-1"}, "numEvaluationsCompleted": 1}]}`)

	mock.Handle(evaluationsPath, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("evaluatorUserId") != "ev-1" ||
			r.URL.Query().Get("pageNumber") != "1" {
			fmt.Fprint(w, `{"entities": []}`)
			return
		}
		fmt.Fprint(w, `{"entities": [
			{
				"id": "E1",
				"conversationId": "C1",
				"answers": {"questionGroupScores": [
					{"questionGroupId": "QG1", "questionScores": [
						{"questionId": "Q1", "score": 100}
					]}
				]}
			}
		]}`)
	})

	dir := t.TempDir()
	collector := export.NewCollector(newExporter(t, mock, dir))

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	count, err := collector.Run(context.Background(), start, start.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	lines := readLines(t, filepath.Join(dir, "E1_C1.jsonl"))
	if len(lines) != 1 {
		t.Fatalf("E1_C1.jsonl has %d lines, want 1", len(lines))
	}
	if !strings.Contains(lines[0], `"evaluationid":"E1"`) {
		t.Errorf("record = %q, missing evaluation linkage", lines[0])
	}
}

func TestRerunIsByteIdentical(t *testing.T) {
	mock := testutil.NewMockQualityAPI()
	defer mock.Close()

	mock.SetPages(formsPath, `{"entities": [
		{
			"id": "F1",
			"name": "Call scorecard",
			"questionGroups": [
				{"id": "QG1", "questions": [
					{"id": "Q1", "answerOptions": [{"id": "AO1"}]}
				]}
			]
		}
	]}`)

	dir := t.TempDir()
	exporter := newExporter(t, mock, dir)
	ctx := context.Background()

	if _, err := exporter.ExportForms(ctx, export.FormOptions{}); err != nil {
		t.Fatalf("First ExportForms() error = %v", err)
	}
	first, err := os.ReadFile(filepath.Join(dir, "questiongroups_F1.jsonl"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := exporter.ExportForms(ctx, export.FormOptions{}); err != nil {
		t.Fatalf("Second ExportForms() error = %v", err)
	}
	second, err := os.ReadFile(filepath.Join(dir, "questiongroups_F1.jsonl"))
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Errorf("Re-run output differs:\n%s\nvs\n%s", first, second)
	}
}

func TestApiFailureLeavesPartialOutput(t *testing.T) {
	mock := testutil.NewMockQualityAPI()
	defer mock.Close()

	// Page 1 succeeds, page 2 fails: the file from page 1 must remain.
	mock.Handle(formsPath, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageNumber") != "1" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"entities": [
			{"id": "F1", "questionGroups": [
				{"id": "QG1", "questions": [
					{"id": "Q1", "answerOptions": [{"id": "AO1"}]}
				]}
			]}
		]}`)
	})

	dir := t.TempDir()
	exporter := newExporter(t, mock, dir)

	count, err := exporter.ExportForms(context.Background(), export.FormOptions{})
	if err == nil {
		t.Fatal("Expected error from failing page, got nil")
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 record written before failure", count)
	}

	if _, statErr := os.Stat(filepath.Join(dir, "questiongroups_F1.jsonl")); statErr != nil {
		t.Errorf("Expected partial output to remain: %v", statErr)
	}
}
