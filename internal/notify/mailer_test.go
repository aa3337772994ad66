package notify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jeffreasy/LaventeCareGateway/internal/mailer"
	"github.com/Jeffreasy/LaventeCareGateway/internal/notify"
)

type fakeSender struct{}

func (fakeSender) Send(context.Context, mailer.EmailTask) error { return nil }

func TestSendLoginOTP_Queues(t *testing.T) {
	q := mailer.NewQueue(fakeSender{}, 1, nil)
	m := notify.NewQueueMailer(q, nil)

	require.NoError(t, m.SendLoginOTP(context.Background(), "ada@example.com", "Ada <Admin>", "123456"))
	assert.Equal(t, 1, q.Stats().QueueSize)
}

func TestSendLoginOTP_FullQueueIsNotAnError(t *testing.T) {
	q := mailer.NewQueue(fakeSender{}, 1, nil)
	m := notify.NewQueueMailer(q, nil)

	require.NoError(t, m.SendLoginOTP(context.Background(), "ada@example.com", "Ada", "123456"))
	assert.NoError(t, m.SendLoginOTP(context.Background(), "ada@example.com", "Ada", "654321"))
	assert.Equal(t, int64(1), q.Stats().DroppedCount)
}

type captureQueue struct {
	to      []string
	subject string
	body    string
	isHTML  bool
}

func (c *captureQueue) QueueEmail(to, _, _ []string, subject, message string, isHTML bool) (string, bool) {
	c.to, c.subject, c.body, c.isHTML = to, subject, message, isHTML
	return "abcd1234", true
}

func TestSendLoginOTP_RendersEscapedBody(t *testing.T) {
	q := &captureQueue{}
	m := notify.NewQueueMailer(q, nil)

	require.NoError(t, m.SendLoginOTP(context.Background(), "ada@example.com", "<script>x</script>", "123456"))

	assert.Equal(t, []string{"ada@example.com"}, q.to)
	assert.True(t, q.isHTML)
	assert.Contains(t, q.body, "123456")
	assert.Contains(t, q.body, "5 minutes")
	assert.NotContains(t, q.body, "<script>")
}
