package catalog

import (
	"context"
	"fmt"

	"github.com/biolingo/sync-engine/internal/infrastructure/validate"
	"go.uber.org/zap"
)

// Store immutable catalog snapshot, loaded and validated once per session at
// bootstrap. Lookups after construction never touch the provider again
type Store struct {
	courses  []*CourseRef
	byCourse map[string]*CourseRef
	byLesson map[string]*lessonEntry
}

type lessonEntry struct {
	lesson *LessonRef
	course *CourseRef
}

// NewStore load the catalog through the provider and validate every lesson
// payload against its declared type
func NewStore(ctx context.Context, provider Provider, validator validate.Validator, logger *zap.Logger) (*Store, error) {
	courses, err := provider.FetchCatalog(ctx)
	if err != nil {
		return nil, err
	}

	store := &Store{
		courses:  courses,
		byCourse: make(map[string]*CourseRef),
		byLesson: make(map[string]*lessonEntry),
	}
	for _, course := range courses {
		if fieldErrors := validator.Struct(course); fieldErrors != nil {
			return nil, fmt.Errorf("invalid course %q: %s: %s", course.ID, fieldErrors[0].Domain, fieldErrors[0].Reason)
		}
		if _, ok := store.byCourse[course.ID]; ok {
			return nil, fmt.Errorf("duplicated course id %q", course.ID)
		}
		store.byCourse[course.ID] = course

		for _, lesson := range course.Lessons {
			if err := validateLesson(lesson, validator); err != nil {
				return nil, err
			}
			if _, ok := store.byLesson[lesson.ID]; ok {
				return nil, fmt.Errorf("duplicated lesson id %q", lesson.ID)
			}
			store.byLesson[lesson.ID] = &lessonEntry{lesson: lesson, course: course}
		}
	}
	logger.Info("Catalog loaded",
		zap.Int("catalog.courses", len(store.courses)),
		zap.Int("catalog.lessons", len(store.byLesson)),
	)
	return store, nil
}

func validateLesson(lesson *LessonRef, validator validate.Validator) error {
	if fieldErrors := validator.Struct(lesson); fieldErrors != nil {
		return fmt.Errorf("invalid lesson %q: %s: %s", lesson.ID, fieldErrors[0].Domain, fieldErrors[0].Reason)
	}

	content := lesson.Content
	var payloadLen int
	var payloads []interface{}
	switch lesson.Type {
	case LessonReading:
		payloadLen = len(content.Paragraphs)
	case LessonQuiz:
		payloadLen = len(content.Questions)
		for _, q := range content.Questions {
			payloads = append(payloads, q)
		}
	case LessonMatching:
		payloadLen = len(content.Pairs)
		for _, p := range content.Pairs {
			payloads = append(payloads, p)
		}
	case LessonFlashcard:
		payloadLen = len(content.Cards)
		for _, card := range content.Cards {
			payloads = append(payloads, card)
		}
	default:
		return fmt.Errorf("lesson %q: unknown lesson type %q", lesson.ID, lesson.Type)
	}
	if payloadLen == 0 {
		return fmt.Errorf("lesson %q: empty %s content", lesson.ID, lesson.Type)
	}
	for _, payload := range payloads {
		if fieldErrors := validator.Struct(payload); fieldErrors != nil {
			return fmt.Errorf("invalid lesson %q content: %s: %s", lesson.ID, fieldErrors[0].Domain, fieldErrors[0].Reason)
		}
	}
	return nil
}

// Courses all courses in catalog order
func (s *Store) Courses() []*CourseRef {
	return s.courses
}

// CourseByID .
func (s *Store) CourseByID(id string) (*CourseRef, bool) {
	course, ok := s.byCourse[id]
	return course, ok
}

// LessonByID returns the lesson and its owning course
func (s *Store) LessonByID(id string) (*LessonRef, *CourseRef, bool) {
	entry, ok := s.byLesson[id]
	if !ok {
		return nil, nil, false
	}
	return entry.lesson, entry.course, true
}

// HasLesson .
func (s *Store) HasLesson(id string) bool {
	_, ok := s.byLesson[id]
	return ok
}

// LessonCount .
func (s *Store) LessonCount() int {
	return len(s.byLesson)
}
