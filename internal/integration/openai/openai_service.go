package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Commands the agent may choose
const (
	CommandLatestReading    = "LatestReading"
	CommandLatestPrediction = "LatestPrediction"
	CommandDashboard        = "Dashboard"
	CommandGeneralQuery     = "GeneralQuery"
)

// Commands lists every command in the order they are offered to the model
var Commands = []string{CommandLatestReading, CommandLatestPrediction, CommandDashboard, CommandGeneralQuery}

// AgentResponse defines the structured output from the OpenAI agent.
type AgentResponse struct {
	CommandName string `json:"command_name" jsonschema:"enum=LatestReading,enum=LatestPrediction,enum=Dashboard,enum=GeneralQuery" jsonschema_description:"The command to execute"`
	UserMessage string `json:"user_message" jsonschema_description:"A message to show back to the user in their original language"`
}

// OpenAIService defines the interface for interacting with the OpenAI agent.
type OpenAIService interface {
	InterpretUserQuery(ctx context.Context, userMessage string) (*AgentResponse, error)
}

// openAIServiceImpl implements the OpenAIService interface.
type openAIServiceImpl struct {
	client openai.Client
	schema interface{}
	model  openai.ChatModel
	logger *slog.Logger
}

// GenerateSchema generates a JSON schema for a given type.
func GenerateSchema[T any]() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return schema
}

// NewOpenAIService creates and initializes a new OpenAIService.
// Extra request options (base URL, HTTP client) are passed through to the client.
func NewOpenAIService(apiKey string, logger *slog.Logger, opts ...option.RequestOption) (OpenAIService, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	schema := GenerateSchema[AgentResponse]()

	return &openAIServiceImpl{
		client: client,
		schema: schema,
		model:  openai.ChatModelGPT4o,
		logger: logger,
	}, nil
}

func systemPrompt() string {
	return fmt.Sprintf(`You are the assistant of a water-quality monitoring station. Field sensors report pH, total dissolved solids (ppm), turbidity (NTU) and water temperature (°C). Every night a classifier labels the previous day as a risk level.

You understand English, Serbian and Russian and always reply in the language the user wrote in. Be short and factual.

Available commands: %s

Behavior:
1. The user asks for the current or most recent measurement: command_name = "LatestReading".
2. The user asks whether the water is safe, about the risk level or the latest prediction: command_name = "LatestPrediction".
3. The user asks for an overview or status of everything: command_name = "Dashboard".
4. Anything else (greetings, small talk, unrelated questions): command_name = "GeneralQuery".

user_message: a one-line reply in the user's language. For commands 1-3 it introduces the data that will follow. For GeneralQuery it is the full answer.

Output **strictly** in JSON.`, strings.Join(Commands, ", "))
}

// InterpretUserQuery sends a message to the OpenAI agent and returns the structured response.
func (s *openAIServiceImpl) InterpretUserQuery(ctx context.Context, userMessage string) (*AgentResponse, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "agent_response",
		Description: openai.String("Structured response containing the command and a user message"),
		Schema:      s.schema,
		Strict:      openai.Bool(true),
	}

	respFormat := openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
	}

	chat, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt()),
			openai.UserMessage(userMessage),
		},
		ResponseFormat: respFormat,
		Model:          s.model,
	})
	if err != nil {
		return nil, fmt.Errorf("error calling OpenAI API: %w", err)
	}

	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return nil, errors.New("received empty response from OpenAI")
	}

	return s.parseResponse(chat.Choices[0].Message.Content)
}

func (s *openAIServiceImpl) parseResponse(content string) (*AgentResponse, error) {
	var agentResp AgentResponse
	if err := json.Unmarshal([]byte(content), &agentResp); err != nil {
		s.logger.Error("failed to unmarshal OpenAI response", "error", err, "raw", content)
		return nil, fmt.Errorf("error unmarshalling OpenAI response: %w", err)
	}
	return &agentResp, nil
}
