package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvesdmateus/image-publisher/internal/queue"
	"github.com/alvesdmateus/image-publisher/internal/trigger"
)

const (
	testSecret = "webhook-secret"
	testSHA    = "0123456789abcdef0123456789abcdef01234567"
)

type mockDispatcher struct {
	mu     sync.Mutex
	events []*trigger.Event
	err    error
}

func (m *mockDispatcher) TriggerRun(ctx context.Context, event *trigger.Event) (*queue.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.events = append(m.events, event)
	return &queue.Job{ID: "job-1", Event: *event}, nil
}

type recordingWebhookMetrics struct {
	outcomes []string
}

func (m *recordingWebhookMetrics) RecordWebhookDelivery(event, outcome string) {
	m.outcomes = append(m.outcomes, event+":"+outcome)
}

func pushPayload(ref, sha string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"ref":   ref,
		"after": sha,
		"repository": map[string]interface{}{
			"full_name": "Owner/MyRepo",
			"clone_url": "https://github.com/Owner/MyRepo.git",
		},
		"sender": map[string]interface{}{"login": "octocat"},
	})
	return body
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func deliver(t *testing.T, handler http.HandlerFunc, eventType string, body []byte, signature string) (*httptest.ResponseRecorder, WebhookResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/hooks/github", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-GitHub-Delivery", "delivery-42")
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	rec := httptest.NewRecorder()

	handler(rec, req)

	var resp WebhookResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func newTestWebhook(d Dispatcher) (*WebhookHandler, *recordingWebhookMetrics) {
	h := NewWebhookHandler(d, trigger.NewFilter("main"), testSecret)
	m := &recordingWebhookMetrics{}
	h.metrics = m
	return h, m
}

func TestWebhook_MatchingPushIsQueued(t *testing.T) {
	d := &mockDispatcher{}
	h, m := newTestWebhook(d)

	body := pushPayload("refs/heads/main", testSHA)
	rec, resp := deliver(t, h.HandlePush, "push", body, sign(body, testSecret))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, OutcomeQueued, resp.Status)
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, "delivery-42", resp.DeliveryID)

	require.Len(t, d.events, 1)
	ev := d.events[0]
	assert.Equal(t, "Owner/MyRepo", ev.Repository)
	assert.Equal(t, testSHA, ev.SHA)
	assert.Equal(t, "octocat", ev.Actor)
	assert.Equal(t, "delivery-42", ev.DeliveryID)
	assert.Equal(t, []string{"push:queued"}, m.outcomes)
}

func TestWebhook_OtherBranchIsSkipped(t *testing.T) {
	d := &mockDispatcher{}
	h, m := newTestWebhook(d)

	for _, ref := range []string{"refs/heads/develop", "refs/heads/Main", "refs/tags/v1.0.0"} {
		body := pushPayload(ref, testSHA)
		rec, resp := deliver(t, h.HandlePush, "push", body, sign(body, testSecret))

		assert.Equal(t, http.StatusAccepted, rec.Code, ref)
		assert.Equal(t, OutcomeSkipped, resp.Status, ref)
	}

	assert.Empty(t, d.events)
	assert.Equal(t, []string{"push:skipped", "push:skipped", "push:skipped"}, m.outcomes)
}

func TestWebhook_BranchDeletionIsSkipped(t *testing.T) {
	d := &mockDispatcher{}
	h, _ := newTestWebhook(d)

	body := pushPayload("refs/heads/main", trigger.ZeroSHA)
	rec, resp := deliver(t, h.HandlePush, "push", body, sign(body, testSecret))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, OutcomeSkipped, resp.Status)
	assert.Empty(t, d.events)
}

func TestWebhook_InvalidSignature(t *testing.T) {
	d := &mockDispatcher{}
	h, m := newTestWebhook(d)

	body := pushPayload("refs/heads/main", testSHA)

	rec, _ := deliver(t, h.HandlePush, "push", body, sign(body, "wrong-secret"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = deliver(t, h.HandlePush, "push", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, d.events)
	assert.Equal(t, []string{"push:rejected", "push:rejected"}, m.outcomes)
}

func TestWebhook_NoSecretSkipsValidation(t *testing.T) {
	d := &mockDispatcher{}
	h := NewWebhookHandler(d, trigger.NewFilter("main"), "")

	rec, resp := deliver(t, h.HandlePush, "push", pushPayload("refs/heads/main", testSHA), "")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, OutcomeQueued, resp.Status)
	assert.Len(t, d.events, 1)
}

func TestWebhook_Ping(t *testing.T) {
	h, _ := newTestWebhook(&mockDispatcher{})

	body := []byte(`{"zen":"Keep it logically awesome."}`)
	rec, resp := deliver(t, h.HandlePush, "ping", body, sign(body, testSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, OutcomePong, resp.Status)
}

func TestWebhook_OtherEventIsSkipped(t *testing.T) {
	d := &mockDispatcher{}
	h, _ := newTestWebhook(d)

	body := []byte(`{"action":"opened"}`)
	rec, resp := deliver(t, h.HandlePush, "pull_request", body, sign(body, testSecret))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, OutcomeSkipped, resp.Status)
	assert.Empty(t, d.events)
}

func TestWebhook_MalformedPayload(t *testing.T) {
	h, _ := newTestWebhook(&mockDispatcher{})

	body := []byte(`{"ref": 42`)
	rec, _ := deliver(t, h.HandlePush, "push", body, sign(body, testSecret))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_DispatchFailure(t *testing.T) {
	h, m := newTestWebhook(&mockDispatcher{err: errors.New("redis down")})

	body := pushPayload("refs/heads/main", testSHA)
	rec, _ := deliver(t, h.HandlePush, "push", body, sign(body, testSecret))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, []string{"push:error"}, m.outcomes)
}
