package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"defaulter/internal/update"
)

// RunFilePrefix starts every per-run audit file name.
const RunFilePrefix = "run-"

const csvHeader = "timestamp,libraryName,ratingKey,partId,title,group,user,actionType,fromStreamId,fromLabel,toStreamId,toLabel,status,reason,httpStatus,durationMs\n"

// FileSink appends records to run-<stamp>.json and run-<stamp>.csv. The JSON
// file is a valid array only after Close.
type FileSink struct {
	jsonPath string
	csvPath  string

	mu       sync.Mutex
	jsonFile *os.File
	csvFile  *os.File
	jsonBuf  *bufio.Writer
	csvBuf   *bufio.Writer
	first    bool
	closed   bool

	closeOnce sync.Once
	closeErr  error
}

// NewFileSink creates the directory and both run files, stamped with now in UTC.
func NewFileSink(dir string, now time.Time) (*FileSink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("audit dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	stamp := now.UTC().Format("20060102T150405")
	sink := &FileSink{
		jsonPath: filepath.Join(dir, RunFilePrefix+stamp+".json"),
		csvPath:  filepath.Join(dir, RunFilePrefix+stamp+".csv"),
		first:    true,
	}
	var err error
	if sink.jsonFile, err = os.OpenFile(sink.jsonPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err != nil {
		return nil, fmt.Errorf("open audit json: %w", err)
	}
	if sink.csvFile, err = os.OpenFile(sink.csvPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err != nil {
		_ = sink.jsonFile.Close()
		return nil, fmt.Errorf("open audit csv: %w", err)
	}
	sink.jsonBuf = bufio.NewWriter(sink.jsonFile)
	sink.csvBuf = bufio.NewWriter(sink.csvFile)
	_, _ = sink.jsonBuf.WriteString("[\n")
	_, _ = sink.csvBuf.WriteString(csvHeader)
	return sink, nil
}

// JSONPath returns the JSON file location.
func (s *FileSink) JSONPath() string { return s.jsonPath }

// CSVPath returns the CSV file location.
func (s *FileSink) CSVPath() string { return s.csvPath }

// Append writes one record to both files.
func (s *FileSink) Append(rec update.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("audit file sink closed")
	}
	if !s.first {
		_, _ = s.jsonBuf.WriteString(",\n")
	}
	s.first = false
	_, _ = s.jsonBuf.Write(data)
	_, _ = s.csvBuf.WriteString(csvRow(rec))
	if err := s.jsonBuf.Flush(); err != nil {
		return fmt.Errorf("write audit json: %w", err)
	}
	if err := s.csvBuf.Flush(); err != nil {
		return fmt.Errorf("write audit csv: %w", err)
	}
	return nil
}

// Close terminates the JSON array and closes both files. Later calls return
// the first call's result.
func (s *FileSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		_, _ = s.jsonBuf.WriteString("\n]\n")
		s.closeErr = errors.Join(
			s.jsonBuf.Flush(),
			s.csvBuf.Flush(),
			s.jsonFile.Close(),
			s.csvFile.Close(),
		)
	})
	return s.closeErr
}

func csvRow(rec update.Record) string {
	httpStatus := ""
	if rec.HTTPStatus != nil {
		httpStatus = strconv.Itoa(*rec.HTTPStatus)
	}
	cells := []string{
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.Library,
		rec.RatingKey,
		strconv.FormatInt(rec.PartID, 10),
		rec.Title,
		rec.Group,
		rec.Viewer,
		rec.ActionType,
		rec.FromStreamID,
		rec.FromLabel,
		rec.ToStreamID,
		rec.ToLabel,
		string(rec.Status),
		rec.Reason,
		httpStatus,
		strconv.FormatInt(rec.DurationMs, 10),
	}
	for i, cell := range cells {
		cells[i] = escapeCSV(cell)
	}
	return strings.Join(cells, ",") + "\n"
}

// escapeCSV quotes a cell only when it holds a quote, comma, or newline.
func escapeCSV(value string) string {
	if !strings.ContainsAny(value, "\",\n") {
		return value
	}
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
