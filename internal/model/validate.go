package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid entity")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the question invariants enforced on every write.
func (q Question) Validate() error {
	if strings.TrimSpace(q.ID) == "" {
		return invalid("question id is empty")
	}
	if !q.Type.IsValid() {
		return invalid("question %s: unknown type %q", q.ID, q.Type)
	}
	if strings.TrimSpace(q.Prompt) == "" {
		return invalid("question %s: prompt is empty", q.ID)
	}
	if !q.Difficulty.IsValid() {
		return invalid("question %s: unknown difficulty %q", q.ID, q.Difficulty)
	}
	if !q.Type.IsChoice() {
		return nil
	}
	if len(q.Options) == 0 {
		return invalid("question %s: %s requires options", q.ID, q.Type)
	}
	values := q.Answer.Values()
	if len(values) == 0 {
		return invalid("question %s: choice answer is empty", q.ID)
	}
	for _, v := range values {
		if OptionIndex(q.Options, v) < 0 {
			return invalid("question %s: answer %q is not one of the options", q.ID, v)
		}
	}
	return nil
}

// OptionIndex resolves an answer value against an option list. A value matches
// an option by its text (case and surrounding space ignored) or by its letter
// label ("A", "b", "C)"). It returns -1 when nothing matches.
func OptionIndex(options []string, value string) int {
	v := strings.TrimSpace(value)
	for i, o := range options {
		if strings.EqualFold(strings.TrimSpace(o), v) {
			return i
		}
	}
	label := strings.TrimRight(v, ").:")
	if len(label) == 1 {
		c := label[0]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c >= 'A' && int(c-'A') < len(options) {
			return int(c - 'A')
		}
	}
	return -1
}

// Validate checks the syllabus invariants enforced on every write.
func (s Syllabus) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return invalid("syllabus id is empty")
	}
	if strings.TrimSpace(s.CourseName) == "" {
		return invalid("syllabus %s: course name is empty", s.ID)
	}
	return nil
}

// Validate checks that every answer refers to a question of the session.
func (s QuizSession) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return invalid("session id is empty")
	}
	for id, a := range s.Answers {
		if !s.HasQuestion(id) {
			return invalid("session %s: answer for unknown question %s", s.ID, id)
		}
		if a.QuestionID != id {
			return invalid("session %s: answer key %s does not match question %s", s.ID, id, a.QuestionID)
		}
	}
	return nil
}
