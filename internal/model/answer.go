package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Answer is a canonical answer: either a single string (which may also be a
// free-form grading rubric) or a list of strings. It serializes as a JSON
// string or a JSON array accordingly.
type Answer struct {
	Text string
	List []string
}

// TextAnswer returns a single-string answer.
func TextAnswer(s string) Answer { return Answer{Text: s} }

// ListAnswer returns a multi-value answer.
func ListAnswer(items ...string) Answer { return Answer{List: items} }

// IsList reports whether the answer holds multiple values.
func (a Answer) IsList() bool { return a.List != nil }

// IsEmpty reports whether no answer value is set.
func (a Answer) IsEmpty() bool {
	return strings.TrimSpace(a.Text) == "" && len(a.List) == 0
}

// Values returns the answer as a list, wrapping a single string.
func (a Answer) Values() []string {
	if a.IsList() {
		return a.List
	}
	if a.Text == "" {
		return nil
	}
	return []string{a.Text}
}

// String renders the answer for prompts.
func (a Answer) String() string {
	if a.IsList() {
		return strings.Join(a.List, "; ")
	}
	return a.Text
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.IsList() {
		return json.Marshal(a.List)
	}
	return json.Marshal(a.Text)
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*a = Answer{}
		return nil
	case strings.HasPrefix(trimmed, "["):
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("answer list: %w", err)
		}
		*a = Answer{List: list}
		return nil
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Answer{Text: s}
		return nil
	default:
		// Numbers and booleans are kept as their literal text.
		*a = Answer{Text: trimmed}
		return nil
	}
}

func (a Answer) MarshalYAML() (any, error) {
	if a.IsList() {
		return a.List, nil
	}
	return a.Text, nil
}

func (a *Answer) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return fmt.Errorf("answer list: %w", err)
		}
		*a = Answer{List: list}
	case yaml.ScalarNode:
		*a = Answer{Text: node.Value}
	default:
		return fmt.Errorf("answer: unsupported yaml node at line %d", node.Line)
	}
	return nil
}

// Response is what a learner submitted for a question. Exactly one of Text,
// List or BlobRef is expected to be set; BlobRef points into blob storage for
// diagram submissions.
type Response struct {
	Text      string   `json:"text,omitempty"`
	List      []string `json:"list,omitempty"`
	BlobRef   string   `json:"blobRef,omitempty"`
	MediaType string   `json:"mediaType,omitempty"`
}

// Submission is a response ready for grading. For image submissions Image holds
// the raw bytes.
type Submission struct {
	Text  string
	List  []string
	Image *ImageBlob
}

// ImageBlob is an uploaded image.
type ImageBlob struct {
	MediaType string
	Data      []byte
}

// AsText renders a non-image submission as plain text.
func (s Submission) AsText() string {
	if len(s.List) > 0 {
		return strings.Join(s.List, "; ")
	}
	return s.Text
}
