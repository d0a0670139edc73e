package store

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/bayesopt/internal/bo"
)

func testEntries() []TraceEntry {
	now := time.Now()
	return []TraceEntry{
		{Iteration: 0, Phase: bo.PhaseInitial, Point: []float64{0.1, 0.9}, Value: 10.8, Best: 10.8, Timestamp: now},
		{Iteration: 0, Phase: bo.PhaseInitial, Point: []float64{0.6, 0.4}, Value: 10.2, Best: 10.2, Timestamp: now},
		{Iteration: 1, Phase: bo.PhaseSequential, Point: []float64{0.5, 0.5}, Value: 10.0018, Best: 10.0018, Criterion: "ei", Timestamp: now},
		{Iteration: 2, Phase: bo.PhaseSequential, Point: []float64{0.3, 0.5}, Value: 10.0538, Best: 10.0018, Criterion: "ei", Timestamp: now},
	}
}

func TestTraceWriter_WriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	id := "run-trace"

	writer, err := NewTraceWriter(tmpDir, id, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	entries := testEntries()
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	tracePath := filepath.Join(tmpDir, "runs", id, "trace.jsonl")
	if writer.Path() != tracePath {
		t.Errorf("Path = %q, want %q", writer.Path(), tracePath)
	}
	if _, err := os.Stat(tracePath); os.IsNotExist(err) {
		t.Fatalf("Trace file not created: %s", tracePath)
	}

	reader, err := NewTraceReader(tmpDir, id)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	readEntries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(readEntries) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(readEntries))
	}
	for i, entry := range readEntries {
		if entry.Iteration != entries[i].Iteration || entry.Phase != entries[i].Phase {
			t.Errorf("Entry %d: got iteration %d phase %s", i, entry.Iteration, entry.Phase)
		}
		if entry.Value != entries[i].Value || entry.Best != entries[i].Best {
			t.Errorf("Entry %d: got value %f best %f", i, entry.Value, entry.Best)
		}
		if len(entry.Point) != 2 {
			t.Errorf("Entry %d: expected 2 coordinates, got %d", i, len(entry.Point))
		}
	}
}

func TestTraceWriter_Append(t *testing.T) {
	tmpDir := t.TempDir()
	id := "run-append"
	entries := testEntries()

	for i, batch := range [][]TraceEntry{entries[:2], entries[2:]} {
		w, err := NewTraceWriter(tmpDir, id, i > 0)
		if err != nil {
			t.Fatalf("Failed to create writer %d: %v", i, err)
		}
		for _, e := range batch {
			if err := w.Write(e); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}
		w.Close()
	}

	reader, err := NewTraceReader(tmpDir, id)
	if err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	defer reader.Close()
	got, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != len(entries) {
		t.Errorf("Expected %d entries after append, got %d", len(entries), len(got))
	}
}

func TestTraceReader_NotFound(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTrace(t *testing.T) {
	tmpDir := t.TempDir()
	w, err := NewTraceWriter(tmpDir, "run-x", false)
	if err != nil {
		t.Fatal(err)
	}
	w.Close()

	if err := DeleteTrace(tmpDir, "run-x"); err != nil {
		t.Fatalf("DeleteTrace failed: %v", err)
	}
	if err := DeleteTrace(tmpDir, "run-x"); err != nil {
		t.Errorf("Deleting a missing trace should succeed, got %v", err)
	}
}

func TestEntryFromEvent(t *testing.T) {
	e := EntryFromEvent(bo.Event{
		Phase: bo.PhaseSequential, Iteration: 4, Point: []float64{1}, Value: 3, Best: 2, Criterion: "lcb",
	})
	if e.Iteration != 4 || e.Best != 2 || e.Criterion != "lcb" || e.Timestamp.IsZero() {
		t.Errorf("Unexpected entry %+v", e)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(testEntries())

	if s.Evaluations != 4 || s.Initial != 2 {
		t.Errorf("Counts: got %d evaluations, %d initial", s.Evaluations, s.Initial)
	}
	if s.Min != 10.0018 || s.Max != 10.8 {
		t.Errorf("Range: got [%f, %f]", s.Min, s.Max)
	}
	if s.BestAt != 3 {
		t.Errorf("BestAt = %d, want 3", s.BestAt)
	}
	wantMean := (10.8 + 10.2 + 10.0018 + 10.0538) / 4
	if math.Abs(s.Mean-wantMean) > 1e-12 {
		t.Errorf("Mean = %f, want %f", s.Mean, wantMean)
	}
	if !(s.StdDev > 0) {
		t.Errorf("StdDev = %f, want > 0", s.StdDev)
	}

	empty := Summarize(nil)
	if empty.Evaluations != 0 || !math.IsNaN(empty.Mean) {
		t.Errorf("Empty summary: %+v", empty)
	}
	if single := Summarize(testEntries()[:1]); single.StdDev != 0 {
		t.Errorf("Single entry StdDev = %f, want 0", single.StdDev)
	}
}
