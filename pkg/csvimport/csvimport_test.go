package csvimport

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
)

func TestParseStudentIDsWithHeader(t *testing.T) {
	ids, err := ParseStudentIDs("id,name\n1,Alice\n2,Bob\n")
	require.NoError(t, err)
	if diff := cmp.Diff(NewIDSet("1", "2"), ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestParseStudentIDsHeaderlessNumericFirstRow(t *testing.T) {
	ids, err := ParseStudentIDs("5,Alice\n6,Bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "6"}, ids.Sorted())
}

func TestParseStudentIDsDetectsColumnAndStripsQuotes(t *testing.T) {
	text := "\"Full Name\",\"Student Number\"\r\n\"Alice\",\"HS-001\"\r\n\r\n'Bob', 'HS-002' \n"
	ids, err := ParseStudentIDs(text)
	require.NoError(t, err)
	assert.Equal(t, []string{"HS-001", "HS-002"}, ids.Sorted())
}

func TestParseStudentIDsDefaultsToFirstColumn(t *testing.T) {
	ids, err := ParseStudentIDs("code,name\nA1,Alice\nA1,Alice again\nB2,Bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "B2"}, ids.Sorted())
}

func TestParseStudentIDsErrors(t *testing.T) {
	_, err := ParseStudentIDs("  \n\n ")
	require.ErrorIs(t, err, appErrors.ErrCSVEmpty)

	_, err = ParseStudentIDs("name,id\nAlice\nBob,")
	require.ErrorIs(t, err, appErrors.ErrCSVNoValidRows)
}

func TestLooksNumeric(t *testing.T) {
	for _, s := range []string{"", "5", " 12 ", "-3.5", "1e5", "0x1F", "Infinity"} {
		assert.True(t, looksNumeric(s), s)
	}
	for _, s := range []string{"id", "NaN", "inf", "1_000", "HS-001", "12abc"} {
		assert.False(t, looksNumeric(s), s)
	}
}

func TestParseStaff(t *testing.T) {
	now := time.Date(2026, time.March, 7, 10, 0, 0, 0, time.UTC)
	staff, err := ParseStaff("Name,Staff ID\nJane Doe,S-1\n,S-2\nJohn Roe,S-3\nshort", now)
	require.NoError(t, err)

	want := []StaffRecord{
		{ID: "staff-1", Name: "Jane Doe", StaffID: "S-1", IssueDate: "3/7/26"},
		{ID: "staff-3", Name: "John Roe", StaffID: "S-3", IssueDate: "3/7/26"},
	}
	if diff := cmp.Diff(want, staff); diff != "" {
		t.Fatalf("staff mismatch (-want +got):\n%s", diff)
	}
}

func TestParseStaffNameColumnIsNotReusedAsID(t *testing.T) {
	staff, err := ParseStaff("staff name,employee id\nJane,E1", time.Now())
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, "Jane", staff[0].Name)
	assert.Equal(t, "E1", staff[0].StaffID)
}

func TestParseStaffMissingColumns(t *testing.T) {
	for _, text := range []string{"name,email\nJane,j@x", "id,email\n1,j@x", "staff name\nJane"} {
		_, err := ParseStaff(text, time.Now())
		require.ErrorIs(t, err, appErrors.ErrCSVMissingColumns, text)
	}
}

func TestParseStaffNoValidRows(t *testing.T) {
	_, err := ParseStaff("name,id\n,\nJane,", time.Now())
	require.ErrorIs(t, err, appErrors.ErrCSVNoValidRows)
}

func TestDetectFormat(t *testing.T) {
	f, err := DetectFormat("Roster.CSV")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = DetectFormat("staff.xlsx")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = DetectFormat("photo.png")
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestReadRowsXLSX(t *testing.T) {
	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	require.NoError(t, wb.SetSheetRow(sheet, "A1", &[]interface{}{"Name", "ID"}))
	require.NoError(t, wb.SetSheetRow(sheet, "A2", &[]interface{}{"Jane", "S-1"}))
	var buf bytes.Buffer
	_, err := wb.WriteTo(&buf)
	require.NoError(t, err)
	require.NoError(t, wb.Close())

	rows, err := ReadRows("staff.xlsx", &buf)
	require.NoError(t, err)

	staff, err := ParseStaffRows(rows, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, "S-1", staff[0].StaffID)
	assert.Equal(t, "1/2/26", staff[0].IssueDate)
}
