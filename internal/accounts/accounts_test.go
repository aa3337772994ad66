package accounts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jeffreasy/LaventeCareGateway/internal/accounts"
)

type fakeExecutor struct {
	rows   map[string]map[string]any
	err    error
	calls  []string
	params []map[string]any
}

func (f *fakeExecutor) ExecuteSP(_ context.Context, name string, params map[string]any) (map[string]any, error) {
	f.calls = append(f.calls, name)
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[name], nil
}

func TestFindByLoginCode(t *testing.T) {
	exec := &fakeExecutor{rows: map[string]map[string]any{
		"sp_GetUserByLoginCode": {
			"UserID":      int64(42),
			"Email":       "ada@example.com",
			"Name":        "Ada Lovelace",
			"PhoneNumber": nil,
			"Company":     "Analytical Engines",
			"Role":        "admin",
		},
	}}
	dir := accounts.NewSPDirectory(exec)

	acc, err := dir.FindByLoginCode(context.Background(), "  ABC123 ")
	require.NoError(t, err)

	assert.Equal(t, "42", acc.UserID)
	assert.Equal(t, "ada@example.com", acc.Email)
	assert.Equal(t, "Ada Lovelace", acc.Name)
	assert.Empty(t, acc.PhoneNumber)
	assert.Equal(t, "Analytical Engines", acc.Company)
	assert.Equal(t, map[string]any{"Role": "admin"}, acc.Profile)
	assert.Equal(t, map[string]any{"LoginCode": "ABC123"}, exec.params[0])
}

func TestFindByLoginCode_NotFound(t *testing.T) {
	tests := []struct {
		name string
		code string
		rows map[string]map[string]any
	}{
		{"Empty Code Skips Lookup", "  ", nil},
		{"No Row", "ABC123", nil},
		{"Row Without Identity", "ABC123", map[string]map[string]any{"sp_GetUserByLoginCode": {"Name": "ghost"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := accounts.NewSPDirectory(&fakeExecutor{rows: tt.rows})
			_, err := dir.FindByLoginCode(context.Background(), tt.code)
			assert.ErrorIs(t, err, accounts.ErrAccountNotFound)
		})
	}
}

func TestFindByMicrosoftEmail_NormalisesEmail(t *testing.T) {
	exec := &fakeExecutor{rows: map[string]map[string]any{
		"sp_GetUserByMicrosoftEmail": {"UserID": "7", "Email": "ada@example.com"},
	}}
	dir := accounts.NewSPDirectory(exec)

	acc, err := dir.FindByMicrosoftEmail(context.Background(), " Ada@Contoso.com ")
	require.NoError(t, err)
	assert.Equal(t, "7", acc.UserID)
	assert.Equal(t, map[string]any{"MicrosoftEmail": "ada@contoso.com"}, exec.params[0])
}

func TestLinkMicrosoftAccount(t *testing.T) {
	tests := []struct {
		name    string
		row     map[string]any
		wantErr error
	}{
		{"Linked", map[string]any{"Success": true, "UserID": "42", "Email": "ada@example.com"}, nil},
		{"Rejected By Procedure", map[string]any{"Success": int64(0)}, accounts.ErrLinkRejected},
		{"No Row", nil, accounts.ErrLinkRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{rows: map[string]map[string]any{"sp_LinkMicrosoftAccount": tt.row}}
			dir := accounts.NewSPDirectory(exec)

			acc, err := dir.LinkMicrosoftAccount(context.Background(), "ABC123", "ada@contoso.com")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "42", acc.UserID)
			assert.NotContains(t, acc.Profile, "Success")
		})
	}
}

func TestDirectory_PropagatesExecutorErrors(t *testing.T) {
	boom := errors.New("db down")
	dir := accounts.NewSPDirectory(&fakeExecutor{err: boom})

	_, err := dir.FindByLoginCode(context.Background(), "ABC123")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, accounts.ErrAccountNotFound)
}
