package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/lumagen/backend/internal/models"
)

type GenerateImageJobArgs struct {
	RequestID uuid.UUID `json:"request_id"`
}

func (GenerateImageJobArgs) Kind() string { return "generate_image" }

// GeneratedImage is one output reported by a provider.
type GeneratedImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Seed   *int64 `json:"seed,omitempty"`
}

// RequestService defines the lifecycle transitions the worker drives.
// StartProcessing fails when the request is no longer pending (cancelled
// while queued); the worker then drops the job without side effects.
type RequestService interface {
	StartProcessing(ctx context.Context, requestID uuid.UUID) (*models.GenerationRequest, *models.AiModel, error)
	CompleteRequest(ctx context.Context, requestID uuid.UUID, images []GeneratedImage) error
	FailRequest(ctx context.Context, requestID uuid.UUID, reason string) error
	// InvalidTransition reports whether err is the terminal-state guard.
	InvalidTransition(err error) bool
}

// providerPayload is the body POSTed to the model's provider endpoint.
type providerPayload struct {
	Prompt         string          `json:"prompt"`
	NegativePrompt string          `json:"negative_prompt,omitempty"`
	AspectRatio    string          `json:"aspect_ratio"`
	NumOutputs     int             `json:"num_outputs"`
	StylePreset    string          `json:"style_preset,omitempty"`
	Seed           *int64          `json:"seed,omitempty"`
	Quality        string          `json:"quality,omitempty"`
	Parameters     json.RawMessage `json:"parameters,omitempty"`
}

type providerResponse struct {
	Images []GeneratedImage `json:"images"`
}

type GenerateImageWorker struct {
	river.WorkerDefaults[GenerateImageJobArgs]
	requests   RequestService
	httpClient *http.Client
}

func NewGenerateImageWorker(requests RequestService, timeout time.Duration) *GenerateImageWorker {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &GenerateImageWorker{
		requests:   requests,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (w *GenerateImageWorker) Work(ctx context.Context, job *river.Job[GenerateImageJobArgs]) error {
	requestID := job.Args.RequestID

	gr, model, err := w.requests.StartProcessing(ctx, requestID)
	if err != nil {
		if w.requests.InvalidTransition(err) {
			// Cancelled (and refunded) before we got here.
			return nil
		}
		return fmt.Errorf("start processing %s: %w", requestID, err)
	}

	body, err := json.Marshal(providerPayload{
		Prompt:         gr.Prompt,
		NegativePrompt: gr.NegativePrompt,
		AspectRatio:    gr.AspectRatio,
		NumOutputs:     gr.NumOutputs,
		StylePreset:    gr.StylePreset,
		Seed:           gr.Seed,
		Quality:        gr.Quality,
		Parameters:     gr.APIParameters,
	})
	if err != nil {
		return w.failRequest(ctx, requestID, fmt.Sprintf("marshal provider payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, model.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return w.failRequest(ctx, requestID, fmt.Sprintf("build provider request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		// Network faults are worth a river retry before giving up.
		return fmt.Errorf("call provider %s: %w", model.Provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return w.failRequest(ctx, requestID, fmt.Sprintf("provider returned status %d", resp.StatusCode))
	}

	var out providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return w.failRequest(ctx, requestID, "provider returned invalid JSON")
	}
	if len(out.Images) == 0 {
		return w.failRequest(ctx, requestID, "provider returned no images")
	}

	if err := w.requests.CompleteRequest(ctx, requestID, out.Images); err != nil {
		if w.requests.InvalidTransition(err) {
			return nil
		}
		return fmt.Errorf("complete request %s: %w", requestID, err)
	}
	return nil
}

// failRequest marks the request failed and refunds its charge. A terminal
// request (user cancel won the race) is left alone.
func (w *GenerateImageWorker) failRequest(ctx context.Context, requestID uuid.UUID, reason string) error {
	err := w.requests.FailRequest(ctx, requestID, reason)
	if err != nil && !w.requests.InvalidTransition(err) {
		return fmt.Errorf("generation failed (%s) and marking failed also failed: %w", reason, err)
	}
	return nil
}
