package agent

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/datachat-ai/datachat/internal/errors"
	"github.com/datachat-ai/datachat/internal/observability"
	"github.com/datachat-ai/datachat/internal/schema"
	"github.com/datachat-ai/datachat/internal/transcript"
	"github.com/datachat-ai/datachat/internal/warehouse"
)

// Executor runs SQL against the warehouse
type Executor interface {
	Explainer
	Execute(ctx context.Context, statement string) (*warehouse.Result, error)
}

// Agent orchestrates one conversational turn end to end: routing, schema
// resolution, SQL planning, validation, bounded correction, execution,
// interpretation, and chart generation.
type Agent struct {
	router      *Router
	structurer  *schema.Structurer
	planner     *Planner
	validator   *Validator
	corrector   *Corrector
	executor    Executor
	interpreter *Interpreter
	charts      *ChartGenerator
	transcripts *transcript.Store
	logger      *observability.Logger
}

// Config wires an agent's collaborators
type Config struct {
	Router      *Router
	Structurer  *schema.Structurer
	Planner     *Planner
	Validator   *Validator
	Corrector   *Corrector
	Executor    Executor
	Interpreter *Interpreter
	Charts      *ChartGenerator
	Transcripts *transcript.Store
}

// New creates an agent
func New(cfg Config) *Agent {
	return &Agent{
		router:      cfg.Router,
		structurer:  cfg.Structurer,
		planner:     cfg.Planner,
		validator:   cfg.Validator,
		corrector:   cfg.Corrector,
		executor:    cfg.Executor,
		interpreter: cfg.Interpreter,
		charts:      cfg.Charts,
		transcripts: cfg.Transcripts,
		logger:      observability.NewLogger("agent"),
	}
}

// TurnResult is the final outcome of one processed utterance
type TurnResult struct {
	SessionID string            `json:"session_id"`
	Intent    string            `json:"intent"`
	Reply     string            `json:"reply"`
	Statement string            `json:"statement,omitempty"`
	Result    *warehouse.Result `json:"result,omitempty"`
	Chart     map[string]any    `json:"chart,omitempty"`
}

// ProcessTurn runs the full pipeline for one utterance. Progress events
// stream through sink as each step completes.
func (a *Agent) ProcessTurn(ctx context.Context, sessionID, utterance, mode string, sink EventSink) (*TurnResult, error) {
	start := time.Now()
	ctx = observability.WithSessionID(ctx, sessionID)

	if strings.TrimSpace(utterance) == "" {
		return nil, errors.NewInvalidInputError("message", "must not be empty")
	}

	if _, err := a.transcripts.Append(ctx, sessionID, transcript.Message{Role: "user", Content: utterance}); err != nil {
		return nil, err
	}

	state := NewTurnState(utterance, mode)
	result := &TurnResult{SessionID: sessionID}

	intent, err := a.router.Route(ctx, utterance)
	if err != nil {
		// Classification failures degrade to description, not a dead turn
		a.logger.Warn(ctx, "routing degraded", map[string]interface{}{"intent": intent})
	}
	state.Intent = intent
	result.Intent = intent
	sink.emit("status", "supervisor", "intent: "+intent)

	if err := state.Advance(stepForIntent(intent)); err != nil {
		return nil, err
	}

	for state.Step != StepFinish {
		var stepErr error
		switch state.Step {
		case StepLoadData:
			stepErr = a.stepLoadData(ctx, state, sink)
		case StepResolveSchema:
			stepErr = a.stepResolveSchema(ctx, state, sink)
		case StepPlanSQL:
			stepErr = a.stepPlanSQL(ctx, state, sink)
		case StepValidate:
			stepErr = a.stepValidate(ctx, state, sink)
		case StepCorrect:
			stepErr = a.stepCorrect(ctx, state, sink)
		case StepExecute:
			stepErr = a.stepExecute(ctx, state, sessionID, sink)
		case StepInterpret:
			stepErr = a.stepInterpret(ctx, state, sessionID, sink)
		case StepChart:
			stepErr = a.stepChart(ctx, state, sessionID, sink)
		default:
			stepErr = errors.New(errors.ErrCodeInvalidInput, "unknown step "+string(state.Step))
		}
		if stepErr != nil {
			observability.RecordTurnMetrics(time.Since(start), false, intent, errorType(stepErr))
			return nil, stepErr
		}
	}

	result.Reply = state.Reply
	result.Statement = state.Statement
	result.Result = state.Result
	result.Chart = state.Chart

	observability.RecordTurnMetrics(time.Since(start), true, intent, "")
	return result, nil
}

func stepForIntent(intent string) Step {
	switch intent {
	case IntentLoadData:
		return StepLoadData
	case IntentQueryData:
		return StepResolveSchema
	case IntentVisualize:
		return StepChart
	case IntentFinish:
		return StepFinish
	default:
		return StepInterpret
	}
}

func (a *Agent) stepLoadData(ctx context.Context, state *TurnState, sink EventSink) error {
	state.Reply = "Je peux vous aider à charger des données. Veuillez téléverser un fichier CSV."
	sink.emit("message", "csv_loader", state.Reply)
	if _, err := a.transcripts.Append(ctx, observability.GetSessionID(ctx), transcript.Message{
		Role: "assistant", Content: state.Reply,
	}); err != nil {
		return err
	}
	return state.Advance(StepFinish)
}

func (a *Agent) stepResolveSchema(ctx context.Context, state *TurnState, sink EventSink) error {
	query := state.Utterance
	if state.PendingChartRequest != "" {
		query = state.PendingChartRequest
	}

	structure, err := a.structurer.Suggest(ctx, query)
	if err != nil {
		return err
	}
	if structure != nil {
		state.Structure = structure
		state.Mappings = structure.Mappings
		sink.emit("thought", "schema_analyzer", structure.Describe())
	} else {
		sink.emit("thought", "schema_analyzer", "no concepts resolved, relying on raw schema")
	}

	return state.Advance(StepPlanSQL)
}

func (a *Agent) stepPlanSQL(ctx context.Context, state *TurnState, sink EventSink) error {
	statement, err := a.planner.Plan(ctx, state)
	if err != nil {
		return err
	}
	state.Statement = statement
	state.SQLError = ""
	sink.emit("thought", "sql_planner", "Planning SQL: "+statement)
	return state.Advance(StepValidate)
}

func (a *Agent) stepValidate(ctx context.Context, state *TurnState, sink EventSink) error {
	if state.Statement == "" || state.Statement == InvalidStatementSentinel {
		state.SQLError = "No valid SQL query"
		sink.emit("thought", "sql_validator", "no valid SQL to validate")
		return state.Advance(StepCorrect)
	}

	validation, err := a.validator.Validate(ctx, state.Statement)
	if err != nil {
		return err
	}

	if validation.Valid {
		sink.emit("thought", "sql_validator", "query validated successfully")
		return state.Advance(StepExecute)
	}

	state.SQLError = strings.Join(validation.Errors, "; ")
	if len(validation.Suggestions) > 0 {
		state.SQLError += " | " + strings.Join(validation.Suggestions, "; ")
	}
	sink.emit("thought", "sql_validator", state.SQLError)
	return state.Advance(StepCorrect)
}

func (a *Agent) stepCorrect(ctx context.Context, state *TurnState, sink EventSink) error {
	outcome, err := a.corrector.Correct(ctx, state)
	if err != nil {
		return err
	}

	if outcome.Exhausted {
		exhausted := errors.NewCorrectionExhaustedError(state.SQLError, a.corrector.MaxAttempts())
		state.Reply = exhausted.UserMessage()
		sink.emit("thought", "sql_corrector", exhausted.Message)
		return state.Advance(StepInterpret)
	}

	if len(outcome.Changes) == 0 {
		sink.emit("thought", "sql_corrector", "unable to auto-correct: "+state.SQLError)
		state.Reply = "Je n'ai pas réussi à corriger la requête SQL. Erreur: " + truncate(state.SQLError, 300)
		return state.Advance(StepInterpret)
	}

	state.Statement = outcome.Statement
	state.SQLError = ""
	sink.emit("thought", "sql_corrector", strings.Join(outcome.Changes, "; "))
	return state.Advance(StepValidate)
}

func (a *Agent) stepExecute(ctx context.Context, state *TurnState, sessionID string, sink EventSink) error {
	result, err := a.executor.Execute(ctx, state.Statement)
	if err != nil {
		state.SQLError = err.Error()
		sink.emit("thought", "sql_executor", "execution failed: "+truncate(err.Error(), 200))
		return state.Advance(StepCorrect)
	}

	state.Result = result
	state.SQLError = ""
	state.RetryCount = 0

	payload, merr := json.Marshal(DataResult{
		Type:    "data_result",
		Summary: "Executed query: " + state.Statement,
		Columns: result.Columns,
		Data:    result.Rows,
	})
	if merr != nil {
		return merr
	}
	if _, err := a.transcripts.Append(ctx, sessionID, transcript.Message{
		Role: "assistant", Type: transcript.TypeSQLResult, Content: string(payload),
	}); err != nil {
		return err
	}

	sink.emit("message", "sql_executor", string(payload))
	return state.Advance(StepInterpret)
}

func (a *Agent) stepInterpret(ctx context.Context, state *TurnState, sessionID string, sink EventSink) error {
	if state.PendingChartRequest != "" {
		return state.Advance(StepChart)
	}

	// A correction dead end already produced the reply for this turn
	if state.Reply == "" {
		history, err := a.transcripts.Messages(ctx, sessionID, 0)
		if err != nil {
			return err
		}
		reply, err := a.interpreter.Interpret(ctx, state, history)
		if err != nil {
			return err
		}
		state.Reply = reply
	}

	if state.Reply != "" {
		if _, err := a.transcripts.Append(ctx, sessionID, transcript.Message{
			Role: "assistant", Content: state.Reply,
		}); err != nil {
			return err
		}
		sink.emit("message", "data_analyst", state.Reply)
	}

	return state.Advance(StepFinish)
}

func (a *Agent) stepChart(ctx context.Context, state *TurnState, sessionID string, sink EventSink) error {
	history, err := a.transcripts.Messages(ctx, sessionID, 0)
	if err != nil {
		return err
	}

	data := FindLastDataResult(history)
	if data == nil {
		if state.PendingChartRequest != "" {
			// The replanned query produced nothing to chart; stop here
			// instead of looping
			state.Reply = "Je n'ai pas pu récupérer de données pour ce graphique."
			state.PendingChartRequest = ""
			if _, err := a.transcripts.Append(ctx, sessionID, transcript.Message{
				Role: "assistant", Type: transcript.TypeError, Content: state.Reply,
			}); err != nil {
				return err
			}
			sink.emit("message", "chart_generator", state.Reply)
			return state.Advance(StepFinish)
		}

		notice := "Je n'ai pas de données pour ce graphique. Je vais d'abord exécuter une requête SQL pour les récupérer."
		sink.emit("thought", "chart_generator", notice)
		state.PendingChartRequest = state.Utterance
		return state.Advance(StepResolveSchema)
	}

	request := state.Utterance
	if state.PendingChartRequest != "" {
		request = state.PendingChartRequest
	}

	if IsGenericRequest(request) {
		suggestions, err := a.charts.Suggest(ctx, data)
		if err != nil {
			suggestions = []Suggestion{}
		}
		payload, merr := json.Marshal(map[string]any{
			"type":        "chart_suggestions",
			"suggestions": suggestions,
		})
		if merr != nil {
			return merr
		}
		state.Reply = string(payload)
	} else {
		config, err := a.charts.Generate(ctx, data, request)
		if err != nil {
			state.Reply = "Erreur lors de la génération du graphique : " + err.Error()
			state.PendingChartRequest = ""
			sink.emit("message", "chart_generator", state.Reply)
			return state.Advance(StepFinish)
		}
		state.Chart = config
		payload, merr := json.Marshal(map[string]any{
			"type":   "chart_result",
			"config": config,
		})
		if merr != nil {
			return merr
		}
		state.Reply = string(payload)
	}

	state.PendingChartRequest = ""
	if _, err := a.transcripts.Append(ctx, sessionID, transcript.Message{
		Role: "assistant", Type: transcript.TypeChartResult, Content: state.Reply,
	}); err != nil {
		return err
	}
	sink.emit("message", "chart_generator", state.Reply)
	return state.Advance(StepFinish)
}

func errorType(err error) string {
	var enhanced *errors.EnhancedError
	if stderrors.As(err, &enhanced) {
		return string(enhanced.Code)
	}
	return "internal"
}
