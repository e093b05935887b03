package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, r := range Roles() {
		got, err := ParseRole(string(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	_, err := ParseRole("Parent")
	assert.Error(t, err)
	_, err = ParseRole("admin")
	assert.Error(t, err)
}

func TestFeeEffectiveStatus(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		fee  Fee
		want FeeStatus
	}{
		{"due in future", Fee{Status: FeeStatusDue, DueDate: now.AddDate(0, 0, 5)}, FeeStatusDue},
		{"due today", Fee{Status: FeeStatusDue, DueDate: time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)}, FeeStatusDue},
		{"due yesterday", Fee{Status: FeeStatusDue, DueDate: now.AddDate(0, 0, -1)}, FeeStatusOverdue},
		{"paid but late", Fee{Status: FeeStatusPaid, DueDate: now.AddDate(0, 0, -30)}, FeeStatusPaid},
		{"stored overdue", Fee{Status: FeeStatusOverdue, DueDate: now.AddDate(0, 0, 3)}, FeeStatusOverdue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.fee.EffectiveStatus(now))
		})
	}
}

func TestHostelTypeForGender(t *testing.T) {
	ht, ok := HostelTypeForGender(GenderMale)
	assert.True(t, ok)
	assert.Equal(t, HostelTypeBoys, ht)

	ht, ok = HostelTypeForGender("Female")
	assert.True(t, ok)
	assert.Equal(t, HostelTypeGirls, ht)

	_, ok = HostelTypeForGender(GenderOther)
	assert.False(t, ok)
}

func TestSummarizeAttendance(t *testing.T) {
	records := []AttendanceRecord{
		{Status: AttendancePresent},
		{Status: AttendancePresent},
		{Status: AttendancePresent},
		{Status: AttendanceAbsent},
		{Status: AttendanceHoliday},
	}
	summary := SummarizeAttendance("stu-1", records)
	assert.Equal(t, 3, summary.Present)
	assert.Equal(t, 1, summary.Absent)
	assert.InDelta(t, 75.0, summary.Rate, 0.001)

	empty := SummarizeAttendance("stu-2", nil)
	assert.Zero(t, empty.Rate)
}

func TestHostelRoomHasSpace(t *testing.T) {
	assert.True(t, HostelRoom{Capacity: 2, Occupied: 1}.HasSpace())
	assert.False(t, HostelRoom{Capacity: 2, Occupied: 2}.HasSpace())
}

func TestExportJobParamsScan(t *testing.T) {
	var p ExportJobParams
	require.NoError(t, p.Scan([]byte(`{"format":"pdf","feeKind":"hostel","feeId":"f-1"}`)))
	assert.Equal(t, ExportFormatPDF, p.Format)
	assert.Equal(t, FeeKindHostel, p.FeeKind)
	require.NoError(t, p.Scan(nil))
	assert.Equal(t, ExportJobParams{}, p)
	assert.Error(t, p.Scan(42))
}
