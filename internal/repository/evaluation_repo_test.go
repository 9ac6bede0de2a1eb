package repository

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vidya-labs/vidya-go-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Student{},
		&models.Document{},
		&models.Test{},
		&models.Evaluation{},
	))
	return db
}

func seedStudentAndTest(t *testing.T, db *gorm.DB) (models.Student, models.Test) {
	t.Helper()
	student := models.Student{Name: "Asha Verma", Email: "asha@example.com", RollNo: "12", Class: "10A"}
	require.NoError(t, db.Create(&student).Error)

	test := models.Test{Title: "Midterm Physics", Subject: "Physics", Class: "10A", MaxMarks: 50}
	require.NoError(t, db.Create(&test).Error)

	return student, test
}

func TestEvaluationUpsertIsIdempotentOnStudentTestPair(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvaluationRepository(db)
	student, test := seedStudentAndTest(t, db)

	first := models.Evaluation{
		StudentID: student.ID,
		TestID:    test.ID,
		Status:    models.EvaluationStatusProcessing,
	}
	require.NoError(t, repo.Upsert(context.Background(), &first))

	score := 42.0
	payload, err := json.Marshal(models.EvaluationResult{StudentName: student.Name})
	require.NoError(t, err)

	second := models.Evaluation{
		StudentID: student.ID,
		TestID:    test.ID,
		Status:    models.EvaluationStatusCompleted,
		Score:     &score,
		Feedback:  "solid work",
		Result:    payload,
	}
	require.NoError(t, repo.Upsert(context.Background(), &second))

	records, err := repo.FetchByTest(context.Background(), test.ID)
	require.NoError(t, err)
	require.Len(t, records, 1, "second upsert must update in place, not duplicate")
	require.Equal(t, models.EvaluationStatusCompleted, records[0].Status)
	require.NotNil(t, records[0].Score)
	require.Equal(t, 42.0, *records[0].Score)
	require.Equal(t, "solid work", records[0].Feedback)
	require.Equal(t, student.Name, records[0].Student.Name)
}

func TestEvaluationUpsertKeepsDistinctPairsSeparate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvaluationRepository(db)
	student, test := seedStudentAndTest(t, db)

	other := models.Student{Name: "Ravi Kumar", Email: "ravi@example.com", Class: "10A"}
	require.NoError(t, db.Create(&other).Error)

	require.NoError(t, repo.Upsert(context.Background(), &models.Evaluation{
		StudentID: student.ID, TestID: test.ID, Status: models.EvaluationStatusCompleted,
	}))
	require.NoError(t, repo.Upsert(context.Background(), &models.Evaluation{
		StudentID: other.ID, TestID: test.ID, Status: models.EvaluationStatusProcessing,
	}))

	records, err := repo.FetchByTest(context.Background(), test.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestGetByStudentAndTest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvaluationRepository(db)
	student, test := seedStudentAndTest(t, db)

	require.NoError(t, repo.Upsert(context.Background(), &models.Evaluation{
		StudentID: student.ID, TestID: test.ID, Status: models.EvaluationStatusPending,
	}))

	record, err := repo.GetByStudentAndTest(context.Background(), student.ID, test.ID)
	require.NoError(t, err)
	require.Equal(t, models.EvaluationStatusPending, record.Status)

	_, err = repo.GetByStudentAndTest(context.Background(), student.ID, test.ID+99)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
