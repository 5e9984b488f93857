package webhook

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"lokumail/internal/types"
)

type fakeVerifier struct {
	err error
}

func (f *fakeVerifier) Verify(payload []byte, headers http.Header) error {
	return f.err
}

func newHandlerEnv(verifyErr error) (*Handler, *reconEnv) {
	env := newReconEnv()
	handler := NewHandler(HandlerConfig{
		Verifier:   &fakeVerifier{err: verifyErr},
		Reconciler: env.reconciler,
	})
	return handler, env
}

func postWebhook(handler *Handler, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/resend", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.HandleResendWebhook(rec, req)
	return rec
}

func TestHandlerAcceptsVerifiedEvent(t *testing.T) {
	handler, env := newHandlerEnv(nil)

	rec := postWebhook(handler, []byte(`{"type":"email.bounced","data":{"email_id":"msg-1","to":["a@x.com"]}}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.Len(t, env.events.events, 1)
	assert.Contains(t, env.suppressions.entries, "a@x.com")
}

func TestHandlerRejectsInvalidSignature(t *testing.T) {
	handler, env := newHandlerEnv(errors.New("signature mismatch"))

	rec := postWebhook(handler, []byte(`{"type":"email.bounced","data":{"to":["a@x.com"]}}`))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, env.events.events, "nothing is written for an unverified payload")
	assert.Empty(t, env.suppressions.entries)
}

func TestHandlerRejectsInvalidJSON(t *testing.T) {
	handler, env := newHandlerEnv(nil)

	rec := postWebhook(handler, []byte(`{not json`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.events.events)
}

func TestHandlerVerifiesBeforeParsing(t *testing.T) {
	// Invalid JSON with an invalid signature must fail on the signature,
	// proving nothing is parsed before verification.
	handler, _ := newHandlerEnv(errors.New("signature mismatch"))

	rec := postWebhook(handler, []byte(`{not json`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerStorageFailureReturns500(t *testing.T) {
	env := newReconEnv()
	failing := &failingEventStore{}
	env.reconciler = NewReconciler(ReconcilerConfig{
		Jobs:         env.jobs,
		Events:       failing,
		Suppressions: env.suppressions,
	})
	handler := NewHandler(HandlerConfig{
		Verifier:   &fakeVerifier{},
		Reconciler: env.reconciler,
	})

	rec := postWebhook(handler, []byte(`{"type":"email.delivered","data":{"email_id":"msg-1"}}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type failingEventStore struct{}

func (f *failingEventStore) Append(ctx context.Context, event *types.EmailEvent) error {
	return errors.New("database down")
}
