package fileutils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestDecodeModelJSON(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain object", in: `{"a":1}`, want: `{"a":1}`},
		{name: "padded", in: "\n  {\"a\":1}  \n", want: `{"a":1}`},
		{name: "fenced object", in: "```json\n{\"a\":{\"b\":2}}\n```", want: `{"a":{"b":2}}`},
		{name: "prose around array", in: "Here you go: [{\"x\":1},{\"x\":2}] done", want: `[{"x":1},{"x":2}]`},
		{name: "object before array", in: "result {\"list\":[1,2]} end", want: `{"list":[1,2]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var raw json.RawMessage
			if err := DecodeModelJSON(tc.in, &raw); err != nil {
				t.Fatalf("DecodeModelJSON: %v", err)
			}
			require.JSONEq(t, tc.want, string(raw))
		})
	}
}

func TestDecodeModelJSON_Errors(t *testing.T) {
	t.Parallel()

	var raw json.RawMessage
	if err := DecodeModelJSON("   ", &raw); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("empty: err=%v", err)
	}
	if err := DecodeModelJSON("no json here", &raw); err == nil {
		t.Fatalf("expected error for prose")
	}
	if err := DecodeModelJSON("{broken", &raw); err == nil {
		t.Fatalf("expected error for unterminated object")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := Truncate("  short  ", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("abcdefgh", 3); got != "abc…" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("abcdefgh", 0); got != "abcdefgh" {
		t.Fatalf("max=0 should disable truncation, got %q", got)
	}
}

func TestTruncate_CutsOnRuneBoundary(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("京都の宿", 30)
	for _, max := range []int{1, 4, 80, 81, 82} {
		got := Truncate(s, max)
		require.True(t, utf8.ValidString(got), "max=%d produced %q", max, got)
		require.LessOrEqual(t, len(strings.TrimSuffix(got, "…")), max)
	}
	require.Equal(t, "京…", Truncate(s, 4))
	require.Equal(t, "…", Truncate(s, 2))
}

func TestWriteJSONFileAtomic_KeepsMarkup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "nested", "out.json")
	if err := WriteJSONFileAtomic(p, []map[string]string{{"value": "<predict>a & b</predict>"}}, true); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), "<predict>a & b</predict>") {
		t.Fatalf("markup escaped: %s", b)
	}
	if !strings.Contains(string(b), "\n        \"value\"") {
		t.Fatalf("expected 4-space indentation: %s", b)
	}

	entries, err := os.ReadDir(filepath.Dir(p))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp file left behind: %v", entries)
	}
}

type row struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

func TestJSONLAppender_ConcurrentLinesStayWhole(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "out", "records.jsonl")
	app, err := OpenJSONLAppender(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := row{ID: i, Name: strings.Repeat("x", 512)}
			r.Usage.PromptTokens = 1
			r.Usage.CompletionTokens = 2
			r.Usage.TotalTokens = 3
			if err := app.Append(r); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, app.Close())
	require.ErrorIs(t, app.Append(row{}), os.ErrClosed)

	rows, err := ReadJSONL[row](p)
	require.NoError(t, err)
	require.Len(t, rows, n)
	seen := make(map[int]bool, n)
	for _, r := range rows {
		seen[r.ID] = true
	}
	require.Len(t, seen, n)

	var prompt, completion, total int64
	lines, err := ScanUsage(p, func(pt, ct, tt int64) {
		prompt += pt
		completion += ct
		total += tt
	})
	require.NoError(t, err)
	require.Equal(t, n, lines)
	require.Equal(t, int64(n), prompt)
	require.Equal(t, int64(2*n), completion)
	require.Equal(t, int64(3*n), total)
}

func TestJSONLAppender_AppendsToExistingFile(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "records.jsonl")
	for i := 0; i < 2; i++ {
		app, err := OpenJSONLAppender(p)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := app.Append(row{ID: i}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if err := app.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
	rows, err := ReadJSONL[row](p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != 0 || rows[1].ID != 1 {
		t.Fatalf("rows=%+v", rows)
	}
}

func TestReadJSONL_SkipsBlankLinesAndReportsLine(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "in.jsonl")
	require.NoError(t, os.WriteFile(p, []byte("{\"id\":1}\n\n   \n{\"id\":2}"), 0o644))
	rows, err := ReadJSONL[row](p)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, 2, rows[1].ID)

	require.NoError(t, os.WriteFile(p, []byte("{\"id\":1}\n{oops}\n"), 0o644))
	_, err = ReadJSONL[row](p)
	require.Error(t, err)
	require.Contains(t, err.Error(), fmt.Sprintf("%s:2", p))
}

func TestScanUsage_MissingUsageCountsZero(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "out.jsonl")
	body := `{"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}
{"no_usage":true}
{"usage":{"prompt_tokens":1}}
`
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))

	var prompt, completion, total int64
	n, err := ScanUsage(p, func(pt, ct, tt int64) {
		prompt += pt
		completion += ct
		total += tt
	})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []int64{11, 5, 15}, []int64{prompt, completion, total})

	require.NoError(t, os.WriteFile(p, []byte("not json\n"), 0o644))
	_, err = ScanUsage(p, func(int64, int64, int64) {})
	require.Error(t, err)
}
