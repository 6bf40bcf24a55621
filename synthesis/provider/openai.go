package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/nextturn-synth/synthesis/fileutils"
)

const (
	FormatJSONObject = "json_object"
	FormatJSONSchema = "json_schema"
)

// ErrExhausted is matched by every error returned after all attempts of a call failed.
var ErrExhausted = errors.New("model gateway exhausted")

// ExhaustedError carries the last underlying cause of a call that ran out of attempts.
type ExhaustedError struct {
	Name     string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %v after %d attempts: %v", e.Name, ErrExhausted, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Request is one system+user exchange. Schema is optional and only used in json_schema mode.
type Request struct {
	Name   string
	System string
	User   string
	Schema map[string]interface{}
}

// Response is the decoded JSON document plus the token counters reported by the endpoint.
// Counters the endpoint omits stay zero.
type Response struct {
	Raw              json.RawMessage
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

type Options struct {
	BaseURL        string
	APIKey         string
	Model          string
	Retries        int
	RetryBaseSleep time.Duration
	ResponseFormat string
	HTTPTimeout    time.Duration
}

// Gateway issues JSON-mode chat completions against an OpenAI-compatible endpoint.
type Gateway struct {
	client    openai.Client
	model     string
	retries   int
	retryBase time.Duration
	strict    bool
	logger    *zap.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

func NewGateway(opts Options, logger *zap.Logger) (*Gateway, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("provider: api key is empty")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("provider: model is empty")
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	switch opts.ResponseFormat {
	case "", FormatJSONObject, FormatJSONSchema:
	default:
		return nil, fmt.Errorf("provider: unknown response format %q", opts.ResponseFormat)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// The SDK's own retry loop is disabled; CallJSON owns the retry envelope.
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPTimeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.HTTPTimeout))
	}

	return &Gateway{
		client:    openai.NewClient(reqOpts...),
		model:     opts.Model,
		retries:   opts.Retries,
		retryBase: opts.RetryBaseSleep,
		strict:    opts.ResponseFormat == FormatJSONSchema,
		logger:    logger,
		sleep:     sleepContext,
		jitter:    func() time.Duration { return time.Duration(rand.Float64() * float64(time.Second)) },
	}, nil
}

// CallJSON sends the request until a JSON document comes back or the attempts run out.
// Transport errors, empty completions and non-JSON bodies are all retried.
func (g *Gateway) CallJSON(ctx context.Context, req Request) (Response, error) {
	params := g.params(req)

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < g.retries; attempt++ {
		attempts++
		resp, err := g.once(ctx, params)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		g.logger.Warn("model call failed",
			zap.String("call", req.Name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", g.retries),
			zap.Error(err),
		)
		if attempt < g.retries-1 {
			if err := g.sleep(ctx, g.retryBase+g.jitter()); err != nil {
				lastErr = err
				break
			}
		}
	}
	return Response{}, &ExhaustedError{Name: req.Name, Attempts: attempts, Err: lastErr}
}

func (g *Gateway) once(ctx context.Context, params openai.ChatCompletionNewParams) (Response, error) {
	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Response{}, errors.New("chat completion: no choices")
	}

	var raw json.RawMessage
	if err := fileutils.DecodeModelJSON(completion.Choices[0].Message.Content, &raw); err != nil {
		return Response{}, fmt.Errorf("decode model json: %w", err)
	}
	return Response{
		Raw:              raw,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		TotalTokens:      completion.Usage.TotalTokens,
	}, nil
}

func (g *Gateway) params(req Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
	if g.strict && req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.Name,
					Schema: req.Schema,
					Strict: openai.Bool(true),
				},
			},
		}
	}
	return params
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func GenerateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	schemaObj, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	ensureOpenAICompliance(schemaObj)
	return schemaObj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]interface{}, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
)

// ensureOpenAICompliance marks every object closed and every property required, as strict mode demands.
func ensureOpenAICompliance(schema map[string]interface{}) {
	if schemaType, ok := schema[typeKey].(string); ok && schemaType == "object" {
		schema[additionalPropertiesKey] = false

		if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
			var requiredFields []string
			for propName := range properties {
				requiredFields = append(requiredFields, propName)
			}
			if len(requiredFields) > 0 {
				schema[requiredKey] = requiredFields
			}
		}
	}

	if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]interface{}); ok {
				ensureOpenAICompliance(propMap)
			}
		}
	}

	if items, ok := schema[itemsKey].(map[string]interface{}); ok {
		ensureOpenAICompliance(items)
	}
}
