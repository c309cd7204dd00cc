package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/account-lifecycle/pkg/helpers"
	"github.com/oksasatya/account-lifecycle/pkg/mailer"
)

func newWorker(t *testing.T, sender mailer.Sender) (*EmailWorker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewEmailWorker(sender, rdb, helpers.NewDiscardLogger()), mr
}

func encode(t *testing.T, job mailer.EmailJob) []byte {
	t.Helper()
	b, err := json.Marshal(job)
	require.NoError(t, err)
	return b
}

func TestEmailWorkerRendersTemplateAndAcks(t *testing.T) {
	sender := &fakeSender{}
	w, mr := newWorker(t, sender)
	job := composer.Job(notice, testNow)

	assert.Equal(t, Ack, w.Handle(context.Background(), encode(t, job)))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "mina@example.com", sender.sent[0].to)
	assert.NotEmpty(t, sender.sent[0].subject)
	assert.Contains(t, sender.sent[0].text, "Mina")
	assert.True(t, mr.Exists(sentKeyPrefix+job.ID))
}

func TestEmailWorkerDropsRedelivery(t *testing.T) {
	sender := &fakeSender{}
	w, _ := newWorker(t, sender)
	body := encode(t, composer.Job(notice, testNow))

	require.Equal(t, Ack, w.Handle(context.Background(), body))
	assert.Equal(t, Ack, w.Handle(context.Background(), body))
	assert.Len(t, sender.sent, 1)
}

func TestEmailWorkerRejectsBadPayloads(t *testing.T) {
	sender := &fakeSender{}
	w, _ := newWorker(t, sender)

	assert.Equal(t, Reject, w.Handle(context.Background(), []byte("{not json")))
	assert.Equal(t, Reject, w.Handle(context.Background(), encode(t, mailer.EmailJob{Subject: "no recipient"})))
	assert.Equal(t, Reject, w.Handle(context.Background(), encode(t, mailer.EmailJob{To: "a@example.com", Template: "missing_template"})))
	assert.Empty(t, sender.sent)
}

func TestEmailWorkerRequeuesTransportErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("mailgun down")}
	w, mr := newWorker(t, sender)
	job := mailer.EmailJob{ID: "raw-1", To: "a@example.com", Subject: "hello", Text: "hi"}

	assert.Equal(t, Requeue, w.Handle(context.Background(), encode(t, job)))
	assert.False(t, mr.Exists(sentKeyPrefix+"raw-1"))
}

func TestEmailWorkerWithoutRedis(t *testing.T) {
	sender := &fakeSender{}
	w := NewEmailWorker(sender, nil, helpers.NewDiscardLogger())
	job := mailer.EmailJob{ID: "raw-2", To: "a@example.com", Subject: "hello", Text: "hi"}

	assert.Equal(t, Ack, w.Handle(context.Background(), encode(t, job)))
	assert.Equal(t, Ack, w.Handle(context.Background(), encode(t, job)))
	assert.Len(t, sender.sent, 2)
	assert.Equal(t, "requeue", Requeue.String())
}
