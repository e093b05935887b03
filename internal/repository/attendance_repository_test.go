package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-erp-api/internal/models"
)

func TestAttendanceRepositoryAll(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT student_id, date, status, marked_by FROM student_attendance ORDER BY date ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "date", "status", "marked_by"}).
			AddRow("stu-1", day, "Present", "acc-t1").
			AddRow("stu-2", day, "Absent", "acc-t1"))

	records, err := repo.All(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.AttendanceAbsent, records[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
