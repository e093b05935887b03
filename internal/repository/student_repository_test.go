package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-erp-api/internal/models"
)

var studentRowColumns = []string{"id", "name", "class", "section", "roll_number", "avatar", "created_at", "updated_at"}

func TestStudentRepositoryList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(studentRowColumns).AddRow("s-1", "Asha", "10", "A", 1, "avatar.png", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + studentColumns + " FROM students WHERE 1=1 AND class = $1 ORDER BY class ASC, section ASC, roll_number ASC LIMIT 20 OFFSET 0")).
		WithArgs("10").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE 1=1 AND class = $1")).
		WithArgs("10").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{Class: "10"})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, 1, students[0].RollNumber)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateReservesRollNumber(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO roll_sequences").
		WithArgs("9", "B").
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(7))
	mock.ExpectExec("INSERT INTO students").
		WithArgs(sqlmock.AnyArg(), "Ravi", "9", "B", 7, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	student := &models.Student{Name: "Ravi", Class: "9", Section: "B"}
	require.NoError(t, repo.Create(context.Background(), student))
	assert.Equal(t, 7, student.RollNumber)
	assert.NotEmpty(t, student.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO roll_sequences").WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(2))
	mock.ExpectExec("INSERT INTO students").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Student{Name: "Ravi", Class: "9", Section: "B"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUpdateAvatarMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET avatar = $2")).
		WithArgs("missing", "new.png", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateAvatar(context.Background(), "missing", "new.png")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryAllIsUnpaginated(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(studentRowColumns)
	for i := 1; i <= 250; i++ {
		rows.AddRow(fmt.Sprintf("s-%d", i), "Student", "10", "A", i, "", now, now)
	}
	mock.ExpectQuery("^" + regexp.QuoteMeta("SELECT "+studentColumns+" FROM students ORDER BY created_at ASC") + "$").
		WillReturnRows(rows)

	students, err := repo.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, students, 250)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUpdateAvatarRowsAffectedError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET avatar = $2")).
		WillReturnResult(sqlmock.NewErrorResult(assert.AnError))

	err := repo.UpdateAvatar(context.Background(), "s-1", "new.png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, assert.AnError))
	assert.False(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}
