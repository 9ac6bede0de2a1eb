package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/vidya-labs/vidya-go-api/internal/models"
)

// TestRepository defines data operations for tests.
type TestRepository interface {
	Create(ctx context.Context, test *models.Test) error
	GetByID(ctx context.Context, id uint) (models.Test, error)
	List(ctx context.Context, class string) ([]models.Test, error)
}

type testRepository struct {
	db *gorm.DB
}

// NewTestRepository instantiates the repository.
func NewTestRepository(db *gorm.DB) TestRepository {
	return &testRepository{db: db}
}

func (r *testRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Test{}).
		Preload("QuestionPaperDoc").
		Preload("AnswerKeyDoc")
}

func (r *testRepository) Create(ctx context.Context, test *models.Test) error {
	return r.db.WithContext(ctx).Create(test).Error
}

func (r *testRepository) GetByID(ctx context.Context, id uint) (models.Test, error) {
	var test models.Test
	if err := r.baseQuery(ctx).First(&test, id).Error; err != nil {
		return models.Test{}, err
	}

	return test, nil
}

func (r *testRepository) List(ctx context.Context, class string) ([]models.Test, error) {
	query := r.baseQuery(ctx)
	if class != "" {
		query = query.Where("class = ?", class)
	}

	var tests []models.Test
	if err := query.Order("created_at DESC").Find(&tests).Error; err != nil {
		return nil, err
	}

	return tests, nil
}
