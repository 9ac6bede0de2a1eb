package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vidya-labs/vidya-go-api/internal/models"
)

// EvaluationRepository defines data operations for grading records.
type EvaluationRepository interface {
	Upsert(ctx context.Context, evaluation *models.Evaluation) error
	GetByStudentAndTest(ctx context.Context, studentID, testID uint) (models.Evaluation, error)
	FetchByTest(ctx context.Context, testID uint) ([]models.Evaluation, error)
}

type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository instantiates the repository.
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

// Upsert inserts or updates the grading record for the evaluation's
// (student_id, test_id) pair. The composite unique index is the conflict
// target, so concurrent attempts for the same pair resolve to a single row.
func (r *evaluationRepository) Upsert(ctx context.Context, evaluation *models.Evaluation) error {
	// Insert without a primary key so the composite index is the only
	// possible conflict, even when the caller reuses a fetched record.
	evaluation.ID = 0
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "student_id"}, {Name: "test_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "answer_sheet_doc_id", "score", "feedback", "result", "user_feedback", "updated_at",
			}),
		}).
		Create(evaluation).Error
}

func (r *evaluationRepository) GetByStudentAndTest(ctx context.Context, studentID, testID uint) (models.Evaluation, error) {
	var evaluation models.Evaluation
	if err := r.db.WithContext(ctx).
		Preload("Student").
		Where("student_id = ? AND test_id = ?", studentID, testID).
		First(&evaluation).Error; err != nil {
		return models.Evaluation{}, err
	}

	return evaluation, nil
}

func (r *evaluationRepository) FetchByTest(ctx context.Context, testID uint) ([]models.Evaluation, error) {
	var evaluations []models.Evaluation
	if err := r.db.WithContext(ctx).
		Preload("Student").
		Where("test_id = ?", testID).
		Order("student_id ASC").
		Find(&evaluations).Error; err != nil {
		return nil, err
	}

	return evaluations, nil
}
