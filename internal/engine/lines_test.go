package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectLines(t *testing.T, input string, skip, batchSize int) ([][]string, lineCounts) {
	t.Helper()
	var batches [][]string
	counts, err := readLines(context.Background(), strings.NewReader(input), skip, batchSize, func(batch []string) error {
		batches = append(batches, batch)
		return nil
	})
	require.NoError(t, err)
	return batches, counts
}

func TestReadLines(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		skip        int
		wantLines   []string
		wantRead    int64
		wantSkipped int64
	}{
		{
			name:        "header skipped",
			input:       "h\na\nb\n",
			skip:        1,
			wantLines:   []string{"a", "b"},
			wantRead:    3,
			wantSkipped: 1,
		},
		{
			name:      "no trailing newline",
			input:     "a\nb",
			wantLines: []string{"a", "b"},
			wantRead:  2,
		},
		{
			name:      "crlf terminators",
			input:     "a\r\nb\r\n",
			wantLines: []string{"a", "b"},
			wantRead:  2,
		},
		{
			name:      "empty body lines are kept",
			input:     "a\n\nb\n",
			wantLines: []string{"a", "", "b"},
			wantRead:  3,
		},
		{
			name:        "header only",
			input:       "h\n",
			skip:        1,
			wantRead:    1,
			wantSkipped: 1,
		},
		{
			name:        "skip more than available",
			input:       "h\n",
			skip:        3,
			wantRead:    1,
			wantSkipped: 1,
		},
		{
			name:  "empty input",
			input: "",
		},
		{
			name:      "single newline is one empty line",
			input:     "\n",
			wantLines: []string{""},
			wantRead:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches, counts := collectLines(t, tt.input, tt.skip, 10)

			var got []string
			for _, b := range batches {
				got = append(got, b...)
			}
			assert.Equal(t, tt.wantLines, got)
			assert.Equal(t, tt.wantRead, counts.read)
			assert.Equal(t, tt.wantSkipped, counts.skipped)
		})
	}
}

func TestReadLines_Batching(t *testing.T) {
	batches, counts := collectLines(t, "1\n2\n3\n4\n5\n", 0, 2)

	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}, {"5"}}, batches)
	assert.Equal(t, int64(5), counts.read)
}

func TestReadLines_LongLine(t *testing.T) {
	long := strings.Repeat("x", 1<<20)

	batches, _ := collectLines(t, long+"\nshort\n", 0, 10)

	require.Len(t, batches, 1)
	assert.Equal(t, []string{long, "short"}, batches[0])
}

func TestReadLines_CallbackErrorStops(t *testing.T) {
	boom := errors.New("boom")
	calls := 0

	_, err := readLines(context.Background(), strings.NewReader("1\n2\n3\n4\n"), 0, 1, func(batch []string) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestReadLines_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := readLines(ctx, strings.NewReader("1\n2\n"), 0, 1, func(batch []string) error {
		t.Error("callback must not run after cancellation")
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}
