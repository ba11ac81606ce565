package batch

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestReadBatchFile(t *testing.T) {
	tests := []struct {
		name        string
		fileContent string
		want        []Message
		wantErr     bool
	}{
		{
			name:        "empty file",
			fileContent: "",
			want:        nil,
		},
		{
			name:        "only whitespace and comments",
			fileContent: "   \n\t\r\n # nothing here\n",
			want:        nil,
		},
		{
			name: "plain text",
			fileContent: `hello
thanks lol`,
			want: []Message{
				{Text: "hello"},
				{Text: "thanks lol"},
			},
		},
		{
			name:        "tab separated",
			fileContent: "42\talice\tこんにちは\r\n43\tbob\t안녕 ㅋㅋ",
			want: []Message{
				{ChannelID: "42", Author: "alice", Text: "こんにちは"},
				{ChannelID: "43", Author: "bob", Text: "안녕 ㅋㅋ"},
			},
		},
		{
			name: "json lines",
			fileContent: `{"text": "hello", "lang": "en", "channel": "42", "author": "alice"}
{"text": "hi!", "lang": "en", "channel": "42", "author": "bob", "reply_author": "alice"}
{"text": "  "}`,
			want: []Message{
				{Text: "hello", Lang: "en", ChannelID: "42", Author: "alice"},
				{Text: "hi!", Lang: "en", ChannelID: "42", Author: "bob", ReplyAuthor: "alice"},
			},
		},
		{
			name:        "malformed json",
			fileContent: `{"text": `,
			wantErr:     true,
		},
		{
			name:        "too few tab fields",
			fileContent: "42\thello",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			tmpFile := filepath.Join(tmpDir, "messages.txt")
			err := os.WriteFile(tmpFile, []byte(tt.fileContent), 0644)
			if err != nil {
				t.Fatalf("Failed to create test file: %v", err)
			}

			got, err := ReadBatchFile(tmpFile)
			if (err != nil) != tt.wantErr {
				t.Errorf("ReadBatchFile() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ReadBatchFile() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadBatchFile_FileNotFound(t *testing.T) {
	_, err := ReadBatchFile("/nonexistent/file.txt")
	if err == nil {
		t.Error("Expected error for non-existent file")
	}
}

func TestParse_Reader(t *testing.T) {
	got, err := Parse(strings.NewReader("hello\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(got) != 1 || got[0].Text != "hello" {
		t.Errorf("Parse() = %v", got)
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "unix line endings",
			input: "line1\nline2\nline3",
			want:  []string{"line1", "line2", "line3"},
		},
		{
			name:  "windows line endings",
			input: "line1\r\nline2\r\nline3",
			want:  []string{"line1", "line2", "line3"},
		},
		{
			name:  "empty string",
			input: "",
			want:  nil,
		},
		{
			name:  "trailing newline",
			input: "line1\nline2\n",
			want:  []string{"line1", "line2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitLines(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitLines() = %v, want %v", got, tt.want)
			}
		})
	}
}
