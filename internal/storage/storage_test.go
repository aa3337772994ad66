package storage_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jeffreasy/LaventeCareGateway/internal/storage"
)

func newMock(t *testing.T) (*storage.SQLServer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return storage.NewSQLServerFromDB(db), mock
}

func TestExecuteSP_ReturnsFirstRow(t *testing.T) {
	exec, mock := newMock(t)

	rows := sqlmock.NewRows([]string{"UserID", "Email", "Name"}).
		AddRow("42", []byte("ada@example.com"), "Ada").
		AddRow("43", "bob@example.com", "Bob")
	mock.ExpectQuery("sp_GetUserByLoginCode").
		WithArgs(sql.Named("LoginCode", "ABC123")).
		WillReturnRows(rows)

	row, err := exec.ExecuteSP(context.Background(), "sp_GetUserByLoginCode", map[string]any{"LoginCode": "ABC123"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"UserID": "42", "Email": "ada@example.com", "Name": "Ada"}, row)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSP_NoRows(t *testing.T) {
	exec, mock := newMock(t)

	mock.ExpectQuery("dbo.sp_LinkMicrosoftAccount").
		WithArgs(sql.Named("LoginCode", "ABC123"), sql.Named("MicrosoftEmail", "ada@contoso.com")).
		WillReturnRows(sqlmock.NewRows([]string{"Result"}))

	row, err := exec.ExecuteSP(context.Background(), "dbo.sp_LinkMicrosoftAccount", map[string]any{
		"MicrosoftEmail": "ada@contoso.com",
		"LoginCode":      "ABC123",
	})
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSP_DriverErrorIsWrapped(t *testing.T) {
	exec, mock := newMock(t)

	boom := errors.New("connection reset")
	mock.ExpectQuery("sp_GetUserByMicrosoftEmail").WillReturnError(boom)

	_, err := exec.ExecuteSP(context.Background(), "sp_GetUserByMicrosoftEmail", map[string]any{"Email": "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "sp_GetUserByMicrosoftEmail")
}

func TestExecuteSP_RejectsInjection(t *testing.T) {
	exec, _ := newMock(t)

	names := []string{"", "sp_x; DROP TABLE users", "sp x", "sp_x--"}
	for _, name := range names {
		_, err := exec.ExecuteSP(context.Background(), name, nil)
		assert.ErrorIs(t, err, storage.ErrInvalidProcedure, name)
	}
}
