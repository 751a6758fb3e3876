// Package library keeps the in-memory knowledge base in sync with the store
// and merges imported content into it.
package library

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/pavelanni/studyhall/internal/model"
)

// Persister is the storage the library writes through to.
type Persister interface {
	ListQuestions(ctx context.Context) ([]model.Question, error)
	ListSyllabuses(ctx context.Context) ([]model.Syllabus, error)
	PutQuestions(ctx context.Context, qs []model.Question) error
	PutSyllabuses(ctx context.Context, ss []model.Syllabus) error
	PutKnowledge(ctx context.Context, qs []model.Question, ss []model.Syllabus) error
	DeleteQuestion(ctx context.Context, id string) error
	DeleteSyllabus(ctx context.Context, id string) error
	ImportedFingerprint(ctx context.Context, name string) (string, error)
	SetImportedFingerprint(ctx context.Context, name, fingerprint string) error
}

// Library is the in-memory view of the knowledge base. Every mutation is
// persisted first and applied to memory only after the store accepted it.
type Library struct {
	mu         sync.RWMutex
	store      Persister
	questions  []model.Question
	syllabuses []model.Syllabus
}

// Open loads the current knowledge base from the store.
func Open(ctx context.Context, store Persister) (*Library, error) {
	qs, err := store.ListQuestions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	ss, err := store.ListSyllabuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("load syllabuses: %w", err)
	}
	slog.Debug("library loaded", "questions", len(qs), "syllabuses", len(ss))
	return &Library{store: store, questions: qs, syllabuses: ss}, nil
}

func questionID(q model.Question) string { return q.ID }
func syllabusID(s model.Syllabus) string { return s.ID }

// Fresh returns the incoming items whose id is neither in existing nor seen
// earlier in incoming, in input order.
func Fresh[T any](existing, incoming []T, id func(T) string) []T {
	seen := make(map[string]bool, len(existing)+len(incoming))
	for _, e := range existing {
		seen[id(e)] = true
	}
	var out []T
	for _, it := range incoming {
		k := id(it)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, it)
	}
	return out
}

// Merge returns existing followed by the fresh incoming items. Existing items
// always win over incoming ones with the same id.
func Merge[T any](existing, incoming []T, id func(T) string) []T {
	return append(slices.Clone(existing), Fresh(existing, incoming, id)...)
}

// ListQuestions returns a snapshot of the question bank.
func (l *Library) ListQuestions(context.Context) ([]model.Question, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.questions), nil
}

// ListSyllabuses returns a snapshot of the syllabuses.
func (l *Library) ListSyllabuses(context.Context) ([]model.Syllabus, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.syllabuses), nil
}

// MergeQuestions adds the questions whose id is new and returns them.
func (l *Library) MergeQuestions(ctx context.Context, incoming []model.Question) ([]model.Question, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fresh := Fresh(l.questions, incoming, questionID)
	if len(fresh) == 0 {
		return nil, nil
	}
	if err := l.store.PutQuestions(ctx, fresh); err != nil {
		return nil, fmt.Errorf("persist questions: %w", err)
	}
	l.questions = append(l.questions, fresh...)
	return fresh, nil
}

// MergeSyllabuses adds the syllabuses whose id is new and returns them.
func (l *Library) MergeSyllabuses(ctx context.Context, incoming []model.Syllabus) ([]model.Syllabus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fresh := normalized(Fresh(l.syllabuses, incoming, syllabusID))
	if len(fresh) == 0 {
		return nil, nil
	}
	if err := l.store.PutSyllabuses(ctx, fresh); err != nil {
		return nil, fmt.Errorf("persist syllabuses: %w", err)
	}
	l.syllabuses = append(l.syllabuses, fresh...)
	return fresh, nil
}

// MergeBackup merges both collections of a backup in one store transaction.
func (l *Library) MergeBackup(ctx context.Context, b model.Backup) (model.MergeReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mergeBackupLocked(ctx, b)
}

func (l *Library) mergeBackupLocked(ctx context.Context, b model.Backup) (model.MergeReport, error) {
	qs := Fresh(l.questions, b.QuestionBank, questionID)
	ss := normalized(Fresh(l.syllabuses, b.Syllabuses, syllabusID))
	report := model.MergeReport{
		QuestionsAdded:    len(qs),
		QuestionsSkipped:  len(b.QuestionBank) - len(qs),
		SyllabusesAdded:   len(ss),
		SyllabusesSkipped: len(b.Syllabuses) - len(ss),
	}
	if len(qs) == 0 && len(ss) == 0 {
		return report, nil
	}
	if err := l.store.PutKnowledge(ctx, qs, ss); err != nil {
		return model.MergeReport{}, fmt.Errorf("persist backup: %w", err)
	}
	l.questions = append(l.questions, qs...)
	l.syllabuses = append(l.syllabuses, ss...)
	return report, nil
}

// ImportBackupFile decodes and merges a backup file. A file whose content
// fingerprint matches the one recorded for the same name is skipped.
func (l *Library) ImportBackupFile(ctx context.Context, name string, data []byte) (model.MergeReport, error) {
	b, err := DecodeBackup(name, data)
	if err != nil {
		return model.MergeReport{}, err
	}
	fp := Fingerprint(data)

	l.mu.Lock()
	defer l.mu.Unlock()
	prev, err := l.store.ImportedFingerprint(ctx, name)
	if err != nil {
		return model.MergeReport{}, fmt.Errorf("read import history: %w", err)
	}
	if prev == fp {
		slog.Info("backup already imported, skipping", "file", name)
		return model.MergeReport{
			QuestionsSkipped:  len(b.QuestionBank),
			SyllabusesSkipped: len(b.Syllabuses),
			AlreadyImported:   true,
		}, nil
	}

	report, err := l.mergeBackupLocked(ctx, b)
	if err != nil {
		return report, err
	}
	if err := l.store.SetImportedFingerprint(ctx, name, fp); err != nil {
		slog.Warn("failed to record import fingerprint", "file", name, "error", err)
	}
	slog.Info("backup imported", "file", name,
		"questions_added", report.QuestionsAdded, "syllabuses_added", report.SyllabusesAdded)
	return report, nil
}

// Export returns the whole knowledge base as a backup document.
func (l *Library) Export() model.Backup {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b := model.Backup{
		Syllabuses:   slices.Clone(l.syllabuses),
		QuestionBank: slices.Clone(l.questions),
	}
	if b.Syllabuses == nil {
		b.Syllabuses = []model.Syllabus{}
	}
	if b.QuestionBank == nil {
		b.QuestionBank = []model.Question{}
	}
	return b
}

// DeleteQuestion removes a question from the store and from memory.
func (l *Library) DeleteQuestion(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.DeleteQuestion(ctx, id); err != nil {
		return err
	}
	l.questions = slices.DeleteFunc(l.questions, func(q model.Question) bool { return q.ID == id })
	return nil
}

// DeleteSyllabus removes a syllabus from the store and from memory.
func (l *Library) DeleteSyllabus(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.DeleteSyllabus(ctx, id); err != nil {
		return err
	}
	l.syllabuses = slices.DeleteFunc(l.syllabuses, func(s model.Syllabus) bool { return s.ID == id })
	return nil
}

func normalized(ss []model.Syllabus) []model.Syllabus {
	for i := range ss {
		ss[i].Normalize()
	}
	return ss
}
