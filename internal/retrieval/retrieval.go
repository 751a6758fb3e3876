// Package retrieval finds stored knowledge relevant to a topic query.
package retrieval

import (
	"context"
	"strings"

	"github.com/pavelanni/studyhall/internal/model"
)

// Source is anything that can list the knowledge base in a stable order.
// Both the sqlite store and the in-memory library satisfy it.
type Source interface {
	ListQuestions(ctx context.Context) ([]model.Question, error)
	ListSyllabuses(ctx context.Context) ([]model.Syllabus, error)
}

// Retriever filters the knowledge base by naive case-insensitive substring
// matching. Results keep the source order; callers truncate.
type Retriever struct {
	src Source
}

func New(src Source) *Retriever {
	return &Retriever{src: src}
}

// FindRelevantQuestions returns questions whose prompt or any tag contains
// the query. An empty query returns every question.
func (r *Retriever) FindRelevantQuestions(ctx context.Context, query string) ([]model.Question, error) {
	all, err := r.src.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}
	return filter(all, query, func(q model.Question) []string {
		return append([]string{q.Prompt}, q.Tags...)
	}), nil
}

// FindRelevantSyllabuses returns syllabuses whose course name, module titles
// or key points contain the query. An empty query returns every syllabus.
func (r *Retriever) FindRelevantSyllabuses(ctx context.Context, query string) ([]model.Syllabus, error) {
	all, err := r.src.ListSyllabuses(ctx)
	if err != nil {
		return nil, err
	}
	return filter(all, query, func(s model.Syllabus) []string {
		fields := []string{s.CourseName}
		for _, m := range s.Modules {
			fields = append(fields, m.Title)
			fields = append(fields, m.KeyPoints...)
		}
		return fields
	}), nil
}

func filter[T any](items []T, query string, fields func(T) []string) []T {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return items
	}
	var out []T
	for _, it := range items {
		if matchesAny(fields(it), q) {
			out = append(out, it)
		}
	}
	return out
}

func matchesAny(fields []string, q string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
