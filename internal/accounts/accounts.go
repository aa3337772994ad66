// Package accounts resolves application users from the SQL Server directory.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Jeffreasy/LaventeCareGateway/internal/storage"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrLinkRejected    = errors.New("account link rejected")
)

// Account is an application user as returned by the directory procedures.
type Account struct {
	UserID      string
	Email       string
	Name        string
	PhoneNumber string
	Company     string
	Profile     map[string]any
}

// Directory looks accounts up by the credentials the gateway accepts.
type Directory interface {
	FindByLoginCode(ctx context.Context, code string) (*Account, error)
	FindByMicrosoftEmail(ctx context.Context, email string) (*Account, error)
	LinkMicrosoftAccount(ctx context.Context, code, microsoftEmail string) (*Account, error)
}

const (
	spGetUserByLoginCode      = "sp_GetUserByLoginCode"
	spGetUserByMicrosoftEmail = "sp_GetUserByMicrosoftEmail"
	spLinkMicrosoftAccount    = "sp_LinkMicrosoftAccount"
)

// SPDirectory implements Directory over stored procedures.
type SPDirectory struct {
	exec storage.Executor
}

func NewSPDirectory(exec storage.Executor) *SPDirectory {
	return &SPDirectory{exec: exec}
}

func (d *SPDirectory) FindByLoginCode(ctx context.Context, code string) (*Account, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrAccountNotFound
	}
	row, err := d.exec.ExecuteSP(ctx, spGetUserByLoginCode, map[string]any{"LoginCode": code})
	if err != nil {
		return nil, fmt.Errorf("find account by login code: %w", err)
	}
	return accountFromRow(row)
}

func (d *SPDirectory) FindByMicrosoftEmail(ctx context.Context, email string) (*Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrAccountNotFound
	}
	row, err := d.exec.ExecuteSP(ctx, spGetUserByMicrosoftEmail, map[string]any{"MicrosoftEmail": email})
	if err != nil {
		return nil, fmt.Errorf("find account by microsoft email: %w", err)
	}
	return accountFromRow(row)
}

// LinkMicrosoftAccount associates a Microsoft identity with the account owning code.
// The procedure returns the linked account, or a row with Success = 0 when the code
// is unknown or already linked elsewhere.
func (d *SPDirectory) LinkMicrosoftAccount(ctx context.Context, code, microsoftEmail string) (*Account, error) {
	code = strings.TrimSpace(code)
	microsoftEmail = strings.ToLower(strings.TrimSpace(microsoftEmail))
	if code == "" || microsoftEmail == "" {
		return nil, ErrLinkRejected
	}

	row, err := d.exec.ExecuteSP(ctx, spLinkMicrosoftAccount, map[string]any{
		"LoginCode":      code,
		"MicrosoftEmail": microsoftEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("link microsoft account: %w", err)
	}
	if row == nil {
		return nil, ErrLinkRejected
	}
	if ok, present := row["Success"]; present && !truthy(ok) {
		return nil, ErrLinkRejected
	}
	return accountFromRow(row)
}

func accountFromRow(row map[string]any) (*Account, error) {
	if row == nil {
		return nil, ErrAccountNotFound
	}

	acc := &Account{
		UserID:      str(row["UserID"]),
		Email:       str(row["Email"]),
		Name:        str(row["Name"]),
		PhoneNumber: str(row["PhoneNumber"]),
		Company:     str(row["Company"]),
		Profile:     map[string]any{},
	}
	if acc.UserID == "" && acc.Email == "" {
		return nil, ErrAccountNotFound
	}

	for k, v := range row {
		switch k {
		case "UserID", "Email", "Name", "PhoneNumber", "Company", "Success":
		default:
			if v != nil {
				acc.Profile[k] = v
			}
		}
	}
	return acc, nil
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	case string:
		return t == "1" || strings.EqualFold(t, "true")
	default:
		return v != nil
	}
}
