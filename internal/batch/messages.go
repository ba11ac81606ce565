package batch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Message is one inbound chat message read from a batch
type Message struct {
	Text        string `json:"text"`
	Lang        string `json:"lang,omitempty"`
	ChannelID   string `json:"channel,omitempty"`
	Author      string `json:"author,omitempty"`
	ReplyAuthor string `json:"reply_author,omitempty"`
}

// ReadBatchFile reads messages from a file
func ReadBatchFile(filename string) ([]Message, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads messages, one per line. Supported formats:
// - JSON object: {"text": "hello", "lang": "en", "channel": "42", "author": "alice", "reply_author": "bob"}
// - Tab separated: "CHANNEL<TAB>AUTHOR<TAB>TEXT" (language from the channel link)
// - Plain text: "hello" (language and channel from the command line)
//
// Blank lines and lines starting with '#' are skipped.
func Parse(r io.Reader) ([]Message, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	var messages []Message
	for n, line := range splitLines(string(content)) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "{"):
			var msg Message
			if err := json.Unmarshal([]byte(line), &msg); err != nil {
				return nil, fmt.Errorf("line %d: invalid message: %w", n+1, err)
			}
			if strings.TrimSpace(msg.Text) == "" {
				continue
			}
			messages = append(messages, msg)
		case strings.Contains(line, "\t"):
			parts := strings.SplitN(line, "\t", 3)
			if len(parts) != 3 {
				return nil, fmt.Errorf("line %d: expected CHANNEL<TAB>AUTHOR<TAB>TEXT", n+1)
			}
			text := strings.TrimSpace(parts[2])
			if text == "" {
				continue
			}
			messages = append(messages, Message{
				ChannelID: strings.TrimSpace(parts[0]),
				Author:    strings.TrimSpace(parts[1]),
				Text:      text,
			})
		default:
			messages = append(messages, Message{Text: line})
		}
	}

	return messages, nil
}

// splitLines splits a string by newlines, dropping carriage returns
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r", "")
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
