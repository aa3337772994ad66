package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jeffreasy/LaventeCareGateway/internal/accounts"
	"github.com/Jeffreasy/LaventeCareGateway/internal/kvstore"
)

type fakeDirectory struct {
	byCode map[string]*accounts.Account
	err    error
}

func (f *fakeDirectory) FindByLoginCode(_ context.Context, code string) (*accounts.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	acc, ok := f.byCode[code]
	if !ok {
		return nil, accounts.ErrAccountNotFound
	}
	return acc, nil
}

func (f *fakeDirectory) FindByMicrosoftEmail(context.Context, string) (*accounts.Account, error) {
	return nil, accounts.ErrAccountNotFound
}

func (f *fakeDirectory) LinkMicrosoftAccount(context.Context, string, string) (*accounts.Account, error) {
	return nil, accounts.ErrLinkRejected
}

type capturedOTP struct {
	to, name, code string
}

type fakeNotifier struct {
	sent []capturedOTP
	err  error
}

func (f *fakeNotifier) SendLoginOTP(_ context.Context, to, name, code string) error {
	f.sent = append(f.sent, capturedOTP{to, name, code})
	return f.err
}

func newTestAuthService(t *testing.T) (*AuthService, *fakeNotifier, *Gate) {
	t.Helper()
	sessions, mr := newTestSessions(t)
	store := kvstore.New(kvstore.Options{Addr: mr.Addr()})
	t.Cleanup(func() { store.Close() })

	codec := newTestCodec(t, time.Now())
	codec.now = time.Now

	dir := &fakeDirectory{byCode: map[string]*accounts.Account{
		"ABC123": {UserID: "42", Email: "Ada@Example.com", Name: "Ada", Company: "Analytical Engines"},
		"NOMAIL": {UserID: "43", PhoneNumber: "+31600000000"},
	}}
	notifier := &fakeNotifier{}

	svc := NewAuthService(dir, store, sessions, codec, notifier, nil)
	return svc, notifier, NewGate(codec, sessions)
}

func TestLogin_FullFlow(t *testing.T) {
	ctx := context.Background()
	svc, notifier, gate := newTestAuthService(t)

	challenge, err := svc.RequestLoginOTP(ctx, " ABC123 ")
	require.NoError(t, err)
	assert.Equal(t, "email", challenge.Channel)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "ada@example.com", notifier.sent[0].to)
	assert.Len(t, notifier.sent[0].code, 6)

	result, err := svc.VerifyLoginOTP(ctx, "ABC123", notifier.sent[0].code)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", result.User.Email)
	assert.Equal(t, "Analytical Engines", result.User.Profile["company"])

	id, err := gate.Authenticate(ctx, "Bearer "+result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "42", id.User.UserID)

	_, err = svc.VerifyLoginOTP(ctx, "ABC123", notifier.sent[0].code)
	assert.ErrorIs(t, err, ErrInvalidOTP, "one-time password is single-use")

	require.NoError(t, svc.Logout(ctx, id))
	_, err = gate.Authenticate(ctx, "Bearer "+result.AccessToken)
	assert.ErrorIs(t, err, ErrSessionRevoked)
}

func TestLogin_RequestErrors(t *testing.T) {
	ctx := context.Background()
	svc, notifier, _ := newTestAuthService(t)

	_, err := svc.RequestLoginOTP(ctx, "UNKNOWN")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.RequestLoginOTP(ctx, "NOMAIL")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Empty(t, notifier.sent)
}

func TestLogin_DirectoryFailureIsNotACredentialError(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	boom := errors.New("db down")
	svc.directory = &fakeDirectory{err: boom}

	_, err := svc.RequestLoginOTP(context.Background(), "ABC123")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_DeliveryFailureStillIssuesChallenge(t *testing.T) {
	svc, notifier, _ := newTestAuthService(t)
	notifier.err = errors.New("queue full")

	challenge, err := svc.RequestLoginOTP(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.NotNil(t, challenge)
}

func TestLogin_AttemptLimit(t *testing.T) {
	ctx := context.Background()
	svc, notifier, _ := newTestAuthService(t)

	_, err := svc.RequestLoginOTP(ctx, "ABC123")
	require.NoError(t, err)
	good := notifier.sent[0].code

	wrong := "000000"
	if good == wrong {
		wrong = "111111"
	}
	for i := 0; i < maxLoginOTPAttempts; i++ {
		_, err := svc.VerifyLoginOTP(ctx, "ABC123", wrong)
		assert.ErrorIs(t, err, ErrInvalidOTP)
	}

	_, err = svc.VerifyLoginOTP(ctx, "ABC123", good)
	assert.ErrorIs(t, err, ErrInvalidOTP, "attempt is discarded after too many failures")
}

func TestLogin_AttemptLimitHoldsUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	svc, notifier, _ := newTestAuthService(t)

	_, err := svc.RequestLoginOTP(ctx, "ABC123")
	require.NoError(t, err)
	good := notifier.sent[0].code

	wrong := "000000"
	if good == wrong {
		wrong = "111111"
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.VerifyLoginOTP(ctx, "ABC123", wrong)
			assert.ErrorIs(t, err, ErrInvalidOTP)
		}()
	}
	wg.Wait()

	_, err = svc.VerifyLoginOTP(ctx, "ABC123", good)
	assert.ErrorIs(t, err, ErrInvalidOTP, "concurrent wrong guesses still exhaust the challenge")
}

func TestLogin_NewChallengeResetsAttempts(t *testing.T) {
	ctx := context.Background()
	svc, notifier, _ := newTestAuthService(t)

	_, err := svc.RequestLoginOTP(ctx, "ABC123")
	require.NoError(t, err)
	for i := 0; i < maxLoginOTPAttempts-1; i++ {
		_, err := svc.VerifyLoginOTP(ctx, "ABC123", "not-a-code")
		assert.ErrorIs(t, err, ErrInvalidOTP)
	}

	_, err = svc.RequestLoginOTP(ctx, "ABC123")
	require.NoError(t, err)
	require.Len(t, notifier.sent, 2)

	_, err = svc.VerifyLoginOTP(ctx, "ABC123", "not-a-code")
	assert.ErrorIs(t, err, ErrInvalidOTP)
	result, err := svc.VerifyLoginOTP(ctx, "ABC123", notifier.sent[1].code)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", result.User.Email)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	svc, notifier, gate := newTestAuthService(t)

	_, err := svc.RequestLoginOTP(ctx, "ABC123")
	require.NoError(t, err)
	result, err := svc.VerifyLoginOTP(ctx, "ABC123", notifier.sent[0].code)
	require.NoError(t, err)

	id, err := gate.Authenticate(ctx, "Bearer "+result.AccessToken)
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, id)
	require.NoError(t, err)
	_, err = gate.Authenticate(ctx, "Bearer "+refreshed.AccessToken)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, id))
	_, err = svc.Refresh(ctx, id)
	assert.ErrorIs(t, err, ErrSessionRevoked)
}
