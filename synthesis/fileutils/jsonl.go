package fileutils

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/gjson"
)

// ReadJSONL decodes every non-blank line of path into a T.
func ReadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []T
	r := bufio.NewReaderSize(f, 1<<20)
	lineNo := 0
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			line = bytes.TrimSpace(line)
			if len(line) > 0 {
				var v T
				if uerr := json.Unmarshal(line, &v); uerr != nil {
					return nil, fmt.Errorf("%s:%d: %w", path, lineNo, uerr)
				}
				out = append(out, v)
			}
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
}

// JSONLAppender appends one JSON document per line. Safe for concurrent use: every record is
// encoded up front and written with a single Write under the lock, so lines never interleave.
type JSONLAppender struct {
	mu sync.Mutex
	f  *os.File
}

func OpenJSONLAppender(path string) (*JSONLAppender, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir output dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLAppender{f: f}, nil
}

func (a *JSONLAppender) Append(v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return os.ErrClosed
	}
	_, err := a.f.Write(buf.Bytes())
	return err
}

func (a *JSONLAppender) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}

// ScanUsage calls fn with the usage counters of every line in path. Only the usage object is
// parsed; lines without one report zeros. It returns the number of lines visited.
func ScanUsage(path string, fn func(prompt, completion, total int64)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	r := bufio.NewReaderSize(f, 1<<20)
	for {
		line, err := r.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			if !gjson.ValidBytes(line) {
				return n, fmt.Errorf("%s: line %d is not valid JSON", path, n+1)
			}
			usage := gjson.GetBytes(line, "usage")
			fn(usage.Get("prompt_tokens").Int(), usage.Get("completion_tokens").Int(), usage.Get("total_tokens").Int())
			n++
		}
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("read %s: %w", path, err)
		}
	}
}
