package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/lox/shrimpwatch/internal/logger"
)

const (
	DefaultModel           = "gpt-4.1"
	defaultMaxOutputTokens = 1200
)

// ErrMissingAPIKey is returned when no OpenAI credential is configured.
var ErrMissingAPIKey = errors.New("analysis: missing API key (set OPENAI_API_KEY)")

// OpenAI completes requests with the Responses API. Rate limits and server errors are retried
// with exponential backoff for up to two minutes.
type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(apiKey, model string, opts ...option.RequestOption) (*OpenAI, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		model = DefaultModel
	}

	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)

	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (o *OpenAI) Complete(ctx context.Context, instructions, input string) (string, error) {
	var text string
	operation := func() error {
		resp, err := o.client.Responses.New(ctx, responses.ResponseNewParams{
			Model:           shared.ResponsesModel(o.model),
			Instructions:    openai.String(instructions),
			Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
			MaxOutputTokens: openai.Int(defaultMaxOutputTokens),
		})
		if err != nil {
			var apiErr *openai.Error
			if errors.As(err, &apiErr) && retryable(apiErr.StatusCode) {
				logger.L().Warn().Int("status", apiErr.StatusCode).Msg("analysis: transient model error, retrying")
				return err
			}
			return backoff.Permanent(fmt.Errorf("responses: %w", err))
		}
		text = resp.OutputText()
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("analysis: model returned no text")
	}
	return text, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
