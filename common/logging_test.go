package common

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

// The splitter's routing decision keys on the literal "level=error" that
// logrus puts in formatted output; these tests pin that contract without
// capturing the process's real stdout/stderr.
func TestOutputSplitterWriteReturnsFullLength(t *testing.T) {
	splitter := &OutputSplitter{}

	tests := []struct {
		name    string
		message []byte
	}{
		{"error level", []byte(`time="2026-01-15T10:30:00Z" level=error msg="relay dial failed"`)},
		{"info level", []byte(`time="2026-01-15T10:30:00Z" level=info msg="server started"`)},
		{"warn level", []byte(`time="2026-01-15T10:30:00Z" level=warning msg="cache nearly full"`)},
		{"empty", []byte(``)},
		{"multiline", []byte("line 1\nline 2\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := splitter.Write(tt.message)
			assert.NoError(t, err)
			assert.Equal(t, len(tt.message), n)
		})
	}
}

func TestErrorLevelPatternMatching(t *testing.T) {
	assert.True(t, bytes.Contains([]byte(`level=error msg="x"`), []byte("level=error")))
	assert.False(t, bytes.Contains([]byte(`level=info msg="error in text"`), []byte("level=error")),
		"the word error inside a message must not trigger stderr routing")
	assert.False(t, bytes.Contains([]byte(`LEVEL=ERROR`), []byte("level=error")),
		"matching is case-sensitive, as logrus always emits lowercase")
}

func TestOutputSplitterConcurrentWrites(t *testing.T) {
	splitter := &OutputSplitter{}
	done := make(chan bool)

	for i := 0; i < 10; i++ {
		go func() {
			message := []byte(`level=info msg="concurrent"`)
			n, err := splitter.Write(message)
			assert.NoError(t, err)
			assert.Equal(t, len(message), n)
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestGlobalLoggerUsesSplitter(t *testing.T) {
	assert.NotNil(t, Logger)
	_, ok := Logger.Out.(*OutputSplitter)
	assert.True(t, ok, "the global logger must route output through the splitter")
}
