package api

import (
	"context"
	"net/http"

	"github.com/google/go-github/v75/github"
	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/image-publisher/internal/observability"
	"github.com/alvesdmateus/image-publisher/internal/queue"
	"github.com/alvesdmateus/image-publisher/internal/trigger"
)

// Dispatcher hands accepted events to the workers
type Dispatcher interface {
	TriggerRun(ctx context.Context, event *trigger.Event) (*queue.Job, error)
}

// WebhookMetrics counts webhook deliveries
type WebhookMetrics interface {
	RecordWebhookDelivery(event, outcome string)
}

// WebhookHandler receives GitHub webhook deliveries
type WebhookHandler struct {
	dispatcher Dispatcher
	filter     trigger.Filter
	secret     []byte
	metrics    WebhookMetrics
	tracer     *observability.Tracer
}

// NewWebhookHandler creates a webhook handler. An empty secret disables
// signature validation.
func NewWebhookHandler(dispatcher Dispatcher, filter trigger.Filter, secret string) *WebhookHandler {
	return &WebhookHandler{
		dispatcher: dispatcher,
		filter:     filter,
		secret:     []byte(secret),
		tracer:     observability.GetGlobalTracer(),
	}
}

// HandlePush handles POST /hooks/github. Pushes that do not match the branch
// filter are acknowledged with 202 and nothing is enqueued.
func (h *WebhookHandler) HandlePush(w http.ResponseWriter, r *http.Request) {
	eventType := github.WebHookType(r)
	deliveryID := github.DeliveryID(r)

	logger := log.With().
		Str("event", eventType).
		Str("delivery_id", deliveryID).
		Logger()

	ctx, span := h.tracer.StartSpan(r.Context(), "webhook.delivery")
	defer span.End()
	span.SetAttributes(observability.AttrDeliveryID.String(deliveryID))

	payload, err := github.ValidatePayload(r, h.secret)
	if err != nil {
		logger.Warn().Err(err).Msg("Rejected webhook delivery")
		h.record(eventType, "rejected")
		writeError(w, r, http.StatusUnauthorized, "Invalid webhook signature")
		return
	}

	switch eventType {
	case "ping":
		h.record(eventType, OutcomePong)
		writeJSON(w, http.StatusOK, WebhookResponse{Status: OutcomePong, DeliveryID: deliveryID})
		return
	case trigger.EventPush:
	default:
		h.skip(w, eventType, deliveryID, "event type not handled")
		return
	}

	event, err := trigger.ParsePushPayload(eventType, payload)
	if err != nil {
		logger.Warn().Err(err).Msg("Malformed push payload")
		h.record(eventType, "invalid")
		writeError(w, r, http.StatusBadRequest, "Malformed push payload")
		return
	}
	event.DeliveryID = deliveryID

	if !h.filter.Matches(event) {
		logger.Info().
			Str("ref", event.Ref).
			Str("branch", h.filter.Branch).
			Msg("Push does not match branch filter")
		h.skip(w, eventType, deliveryID, "ref does not match branch filter")
		return
	}

	if err := event.Validate(); err != nil {
		logger.Warn().Err(err).Msg("Incomplete push payload")
		h.record(eventType, "invalid")
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.dispatcher.TriggerRun(ctx, event)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to enqueue run")
		span.RecordError(err)
		h.record(eventType, "error")
		writeError(w, r, http.StatusServiceUnavailable, "Failed to enqueue run")
		return
	}

	span.SetAttributes(observability.AttrJobID.String(job.ID))
	logger.Info().
		Str("job_id", job.ID).
		Str("repository", event.Repository).
		Str("sha", event.SHA).
		Msg("Run queued")

	h.record(eventType, OutcomeQueued)
	writeJSON(w, http.StatusAccepted, WebhookResponse{
		Status:     OutcomeQueued,
		JobID:      job.ID,
		DeliveryID: deliveryID,
	})
}

func (h *WebhookHandler) skip(w http.ResponseWriter, eventType, deliveryID, reason string) {
	h.record(eventType, OutcomeSkipped)
	writeJSON(w, http.StatusAccepted, WebhookResponse{
		Status:     OutcomeSkipped,
		Reason:     reason,
		DeliveryID: deliveryID,
	})
}

func (h *WebhookHandler) record(eventType, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordWebhookDelivery(eventType, outcome)
	}
}
