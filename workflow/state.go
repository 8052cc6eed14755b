package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/abdulmalikadeyemo/email-assistant/graph"
	"github.com/abdulmalikadeyemo/email-assistant/parse"
)

// Email categories.
const (
	CategoryPriceEnquiry      = "price_enquiry"
	CategoryCustomerComplaint = "customer_complaint"
	CategoryProductEnquiry    = "product_enquiry"
	CategoryCustomerFeedback  = "customer_feedback"
	CategoryOffTopic          = "off_topic"
)

// Categories lists the known categories.
var Categories = []string{
	CategoryPriceEnquiry,
	CategoryCustomerComplaint,
	CategoryProductEnquiry,
	CategoryCustomerFeedback,
	CategoryOffTopic,
}

var categoryAliases = map[string]string{
	"price_equiry": CategoryPriceEnquiry,
}

// NormalizeCategory maps a model's categorization to a known category. The
// second result is false when the text names none; the cleaned text is
// returned in that case.
func NormalizeCategory(text string) (string, bool) {
	label := parse.Label(text)
	if alias, ok := categoryAliases[label]; ok {
		return alias, true
	}
	for _, c := range Categories {
		if label == c {
			return c, true
		}
	}
	for alias, c := range categoryAliases {
		if strings.Contains(label, alias) {
			return c, true
		}
	}
	for _, c := range Categories {
		if strings.Contains(label, c) {
			return c, true
		}
	}
	return label, false
}

var (
	// ErrEmptyEmail is returned for a blank email.
	ErrEmptyEmail = errors.New("initial email is empty")

	// ErrReservedField is returned when a seed sets a field the run owns.
	ErrReservedField = errors.New("seed field is reserved")
)

// NewInitialState returns the state a run starts from: the email, empty
// research fields, and a zero step counter. Seed fields are added after them;
// a seed may not set the step counter or the email.
func NewInitialState(email string, seed map[string]any) (graph.State, error) {
	if err := ValidateRequest(email, seed); err != nil {
		return graph.State{}, err
	}
	s := graph.NewState(
		graph.F(KeyInitialEmail, email),
		graph.F(KeyResearchInfo, []string{}),
		graph.F(KeyRAGQuestions, []string{}),
		graph.F(KeyInfoNeeded, false),
		graph.F(KeyNumSteps, 0),
	)
	for _, f := range graph.FromMap(seed).Fields() {
		s = s.With(f.Key, f.Value)
	}
	return s, nil
}

// ValidateRequest checks a reply request without building state. The email
// must not be blank and the seed must not set initial_email or num_steps.
func ValidateRequest(email string, seed map[string]any) error {
	if strings.TrimSpace(email) == "" {
		return ErrEmptyEmail
	}
	for _, key := range []string{KeyInitialEmail, KeyNumSteps} {
		if _, ok := seed[key]; ok {
			return fmt.Errorf("%w: %q", ErrReservedField, key)
		}
	}
	return nil
}

// Report is the typed view of a finished (or failed) run's state.
type Report struct {
	InitialEmail       string         `mapstructure:"initial_email" json:"initial_email"`
	EmailCategory      string         `mapstructure:"email_category" json:"email_category,omitempty"`
	DraftEmail         string         `mapstructure:"draft_email" json:"draft_email,omitempty"`
	FinalEmail         string         `mapstructure:"final_email" json:"final_email,omitempty"`
	ResearchInfo       []string       `mapstructure:"research_info" json:"research_info,omitempty"`
	RAGQuestions       []string       `mapstructure:"rag_questions" json:"rag_questions,omitempty"`
	DraftEmailFeedback map[string]any `mapstructure:"draft_email_feedback" json:"draft_email_feedback,omitempty"`
	InfoNeeded         bool           `mapstructure:"info_needed" json:"info_needed"`
	NumSteps           int            `mapstructure:"num_steps" json:"num_steps"`

	// Extra holds seed and other fields the report has no slot for.
	Extra map[string]any `mapstructure:",remain" json:"extra,omitempty"`
}

// ReportFrom decodes s into a Report. Numbers that went through JSON (for
// example a state loaded from a store) are accepted.
func ReportFrom(s graph.State) (Report, error) {
	var r Report
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &r,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Report{}, err
	}
	if err := dec.Decode(s.Map()); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}
