package usecases

import (
	"context"
	"log/slog"

	"github.com/abelzeko/water-quality/internal/integration/openai"
)

// Assistant answers free-text questions by letting the OpenAI agent pick a query
type Assistant struct {
	service     *MonitoringService
	interpreter openai.OpenAIService
	logger      *slog.Logger
}

// NewAssistant creates an assistant. A nil interpreter makes every question fall back to /help.
func NewAssistant(service *MonitoringService, interpreter openai.OpenAIService, logger *slog.Logger) *Assistant {
	return &Assistant{service: service, interpreter: interpreter, logger: logger}
}

const helpFallback = "I don't understand. Use /help to see available commands."

// HandleNaturalLanguageQuery interprets a user's free-text query using the AI service
// and returns an appropriate response string.
func (a *Assistant) HandleNaturalLanguageQuery(ctx context.Context, query string) (string, error) {
	if a.interpreter == nil {
		return helpFallback, nil
	}

	agentResp, err := a.interpreter.InterpretUserQuery(ctx, query)
	if err != nil {
		a.logger.Error("failed to interpret user query", "error", err)
		return "Sorry, I'm having trouble understanding right now. Please try again later or use /help.", nil
	}
	a.logger.Debug("agent response", "command", agentResp.CommandName, "message", agentResp.UserMessage)

	var data string
	switch agentResp.CommandName {
	case openai.CommandLatestReading:
		r, err := a.service.LatestReading(ctx)
		if err != nil {
			return "", err
		}
		data = FormatReading(r)
	case openai.CommandLatestPrediction:
		p, err := a.service.LatestPrediction(ctx)
		if err != nil {
			return "", err
		}
		data = FormatPrediction(p)
	case openai.CommandDashboard:
		snap, err := a.service.Dashboard(ctx)
		if err != nil {
			return "", err
		}
		data = FormatDashboard(snap)
	case openai.CommandGeneralQuery:
		if agentResp.UserMessage == "" {
			return helpFallback, nil
		}
		return agentResp.UserMessage, nil
	default:
		a.logger.Warn("agent returned unexpected command", "command", agentResp.CommandName)
		return "I'm not sure how to respond to that. You can use /help for commands.", nil
	}

	if agentResp.UserMessage == "" {
		return data, nil
	}
	return agentResp.UserMessage + "\n\n" + data, nil
}
