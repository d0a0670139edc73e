package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/bayesopt/internal/bo"
)

// TraceEntry is one evaluation, serialized as a JSON line in trace.jsonl.
type TraceEntry struct {
	// Iteration is 0 for the initial design and counts sequential
	// iterations from 1.
	Iteration int       `json:"iteration"`
	Phase     bo.Phase  `json:"phase"`
	Point     []float64 `json:"point"`
	Value     float64   `json:"value"`
	// Best is the incumbent after this evaluation.
	Best      float64   `json:"best"`
	Criterion string    `json:"criterion,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EntryFromEvent converts a loop progress event.
func EntryFromEvent(e bo.Event) TraceEntry {
	return TraceEntry{
		Iteration: e.Iteration,
		Phase:     e.Phase,
		Point:     e.Point,
		Value:     e.Value,
		Best:      e.Best,
		Criterion: e.Criterion,
		Timestamp: time.Now(),
	}
}

func tracePath(baseDir, id string) string {
	return filepath.Join(runDir(baseDir, id), "trace.jsonl")
}

// TraceWriter writes trace entries to a JSONL file.
// It uses buffered I/O and is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewTraceWriter creates <baseDir>/runs/<id>/trace.jsonl. If append is
// true, new entries are appended to an existing file.
func NewTraceWriter(baseDir, id string, append bool) (*TraceWriter, error) {
	if err := os.MkdirAll(runDir(baseDir, id), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	path := tracePath(baseDir, id)
	var file *os.File
	var err error
	if append {
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write appends a trace entry. It is buffered until Flush or Close.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Flush writes any buffered data and syncs the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader reads trace entries from a JSONL file.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader opens the trace of run id.
func NewTraceReader(baseDir, id string) (*TraceReader, error) {
	file, err := os.Open(tracePath(baseDir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024) // 64KB initial, 1MB max

	return &TraceReader{file: file, scanner: scanner}, nil
}

// Read reads the next trace entry. It returns io.EOF at the end.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var entry TraceEntry
	if err := json.Unmarshal(tr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads all remaining trace entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Close closes the trace reader.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// DeleteTrace removes the trace file of run id.
// Returns nil if the file doesn't exist.
func DeleteTrace(baseDir, id string) error {
	err := os.Remove(tracePath(baseDir, id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete trace file: %w", err)
	}
	return nil
}

// TraceSummary describes the observed values of a trace.
type TraceSummary struct {
	Evaluations int     `json:"evaluations"`
	Initial     int     `json:"initial"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"stdDev"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	// BestAt is the 1-based evaluation that found the minimum.
	BestAt int `json:"bestAt"`
}

// Summarize computes value statistics over entries.
func Summarize(entries []TraceEntry) TraceSummary {
	if len(entries) == 0 {
		return TraceSummary{Mean: math.NaN(), StdDev: math.NaN(), Min: math.NaN(), Max: math.NaN()}
	}

	values := make([]float64, len(entries))
	s := TraceSummary{Evaluations: len(entries)}
	for i, e := range entries {
		values[i] = e.Value
		if e.Phase == bo.PhaseInitial {
			s.Initial++
		}
	}

	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		s.StdDev = 0
	}
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	s.BestAt = floats.MinIdx(values) + 1
	return s
}
