package agent

import (
	"fmt"

	"github.com/datachat-ai/datachat/internal/schema"
	"github.com/datachat-ai/datachat/internal/warehouse"
)

// Step identifies a stage of the turn pipeline
type Step string

const (
	StepRoute         Step = "route"
	StepLoadData      Step = "load_data"
	StepResolveSchema Step = "resolve_schema"
	StepPlanSQL       Step = "plan_sql"
	StepValidate      Step = "validate"
	StepCorrect       Step = "correct"
	StepExecute       Step = "execute"
	StepInterpret     Step = "interpret"
	StepChart         Step = "chart"
	StepFinish        Step = "finish"
)

// Intent labels produced by the router
const (
	IntentLoadData     = "load_data"
	IntentQueryData    = "query_data"
	IntentDescribeData = "describe_data"
	IntentVisualize    = "visualize"
	IntentFinish       = "finish"
)

// transitions enumerates every legal step transition; anything else is a bug
var transitions = map[Step][]Step{
	StepRoute:         {StepLoadData, StepResolveSchema, StepInterpret, StepChart, StepFinish},
	StepLoadData:      {StepFinish},
	StepResolveSchema: {StepPlanSQL},
	StepPlanSQL:       {StepValidate},
	StepValidate:      {StepExecute, StepCorrect},
	StepCorrect:       {StepValidate, StepInterpret},
	StepExecute:       {StepInterpret, StepCorrect},
	StepInterpret:     {StepChart, StepFinish},
	StepChart:         {StepResolveSchema, StepFinish},
}

// TurnState carries everything accumulated while processing one utterance
type TurnState struct {
	Step      Step
	Utterance string
	Mode      string // chat or sql
	Intent    string

	// Schema resolution output
	Mappings  []schema.ColumnMapping
	Structure *schema.QueryStructure

	// SQL pipeline
	Statement  string
	SQLError   string
	RetryCount int

	// Execution output
	Result *warehouse.Result

	// Chart flow
	PendingChartRequest string

	// Final user-facing payloads collected along the way
	Reply string
	Chart map[string]any
}

// NewTurnState starts a turn at the routing step
func NewTurnState(utterance, mode string) *TurnState {
	return &TurnState{
		Step:      StepRoute,
		Utterance: utterance,
		Mode:      mode,
	}
}

// Advance moves to the next step, rejecting transitions the pipeline
// does not define
func (s *TurnState) Advance(next Step) error {
	for _, allowed := range transitions[s.Step] {
		if allowed == next {
			s.Step = next
			return nil
		}
	}
	return fmt.Errorf("illegal step transition %s -> %s", s.Step, next)
}

// Event is a progress notification streamed to the caller during a turn
type Event struct {
	Type    string `json:"type"` // status, thought, or message
	Node    string `json:"node"`
	Content string `json:"content"`
}

// EventSink receives turn progress events; nil sinks are allowed
type EventSink func(Event)

func (s EventSink) emit(eventType, node, content string) {
	if s != nil {
		s(Event{Type: eventType, Node: node, Content: content})
	}
}
