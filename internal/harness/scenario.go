package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cloister/internal/engine"
	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/testutil"
)

// Scenario is a scripted conversation with expectations.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// Actors are the people taking part, with their roles.
	Actors []ActorSpec `yaml:"actors"`

	// AuditChat receives audit broadcasts. Zero disables them.
	AuditChat int64 `yaml:"audit_chat,omitempty"`

	// Draws are the codes the generator will draw, in order.
	Draws []string `yaml:"draws,omitempty"`

	// Setup seeds the store before the first step.
	Setup Setup `yaml:"setup,omitempty"`

	// Steps are the updates to play.
	Steps []Step `yaml:"steps"`

	// Assertions check the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// ActorSpec declares a participant.
type ActorSpec struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
	// Role is "hermit", "initiate" or empty for an unknown actor.
	Role string `yaml:"role,omitempty"`
}

// Setup lists rows inserted before the scenario starts.
type Setup struct {
	Codes []SeedCode `yaml:"codes,omitempty"`
}

// SeedCode is a pre-existing access code.
type SeedCode struct {
	Code    string `yaml:"code"`
	Owner   string `yaml:"owner"`
	Retired bool   `yaml:"retired,omitempty"`
}

// Step is one inbound update. Exactly one of Command, Text and Press is set.
type Step struct {
	Actor   int64   `yaml:"actor"`
	Chat    int64   `yaml:"chat,omitempty"`
	Command string  `yaml:"command,omitempty"`
	Text    *string `yaml:"text,omitempty"`
	Press   string  `yaml:"press,omitempty"`
	// Message pins the pressed message id instead of searching the chat.
	Message int `yaml:"message,omitempty"`
	// Fail lists operations (send, edit, delete, answer) that fail once.
	Fail []string `yaml:"fail,omitempty"`
	// Expect is the expected outcome: "ok" or an engine error kind.
	Expect string `yaml:"expect,omitempty"`
}

// Assertion checks the state left behind by the steps.
type Assertion struct {
	Type     string `yaml:"type"`
	Code     string `yaml:"code,omitempty"`
	Owner    string `yaml:"owner,omitempty"`
	Active   *bool  `yaml:"active,omitempty"`
	Count    *int   `yaml:"count,omitempty"`
	Nickname string `yaml:"nickname,omitempty"`
	Quantity string `yaml:"quantity,omitempty"`
	Chat     int64  `yaml:"chat,omitempty"`
	Contains string `yaml:"contains,omitempty"`
}

// Assertion types.
const (
	AssertCodeState       = "code_state"
	AssertCodeAbsent      = "code_absent"
	AssertCodeCount       = "code_count"
	AssertLedgerContains  = "ledger_contains"
	AssertLedgerCount     = "ledger_count"
	AssertSessionCount    = "session_count"
	AssertAuditCount      = "audit_count"
	AssertMessageContains = "message_contains"
)

// OutcomeOK is the expected outcome of a step that ends without error.
const OutcomeOK = "ok"

var roles = map[string]model.Role{
	"":         model.RoleNone,
	"hermit":   model.RoleHermit,
	"initiate": model.RoleInitiate,
}

var outcomes = []string{
	OutcomeOK,
	string(engine.KindUnauthorized),
	string(engine.KindSessionDesynchronized),
	string(engine.KindUniquenessConflict),
	string(engine.KindAlreadyRetired),
	string(engine.KindNotFound),
	string(engine.KindGenerationExhausted),
	string(engine.KindTransportDegraded),
	string(engine.KindInternal),
}

var failOps = []testutil.Op{testutil.OpSend, testutil.OpEdit, testutil.OpDelete, testutil.OpAnswer}

// kind names the step's update kind.
func (s Step) kind() string {
	switch {
	case s.Command != "":
		return "command"
	case s.Text != nil:
		return "text"
	case s.Press != "":
		return "press"
	}
	return ""
}

// chat returns the step's chat, defaulting to the actor's private chat.
func (s Step) chat() model.ChatID {
	if s.Chat != 0 {
		return model.ChatID(s.Chat)
	}
	return model.ChatID(s.Actor)
}

// LoadScenario loads a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		sc, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

// ParseScenario decodes and validates a YAML scenario. Unknown fields are
// rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if len(s.Actors) == 0 {
		return errors.New("actors list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return errors.New("assertions list is required and must be non-empty")
	}

	known := make(map[int64]bool, len(s.Actors))
	for i, a := range s.Actors {
		if a.ID == 0 {
			return fmt.Errorf("actors[%d]: id is required", i)
		}
		if known[a.ID] {
			return fmt.Errorf("actors[%d]: duplicate id %d", i, a.ID)
		}
		if _, ok := roles[a.Role]; !ok {
			return fmt.Errorf("actors[%d]: unknown role %q", i, a.Role)
		}
		known[a.ID] = true
	}

	for i, d := range s.Draws {
		if !model.ValidCode(d) {
			return fmt.Errorf("draws[%d]: %q is not a 4-digit code", i, d)
		}
	}
	for i, c := range s.Setup.Codes {
		if !model.ValidCode(c.Code) {
			return fmt.Errorf("setup.codes[%d]: %q is not a 4-digit code", i, c.Code)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step, known); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, s.AuditChat); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step, known map[int64]bool) error {
	if !known[step.Actor] {
		return fmt.Errorf("unknown actor %d", step.Actor)
	}
	set := 0
	for _, on := range []bool{step.Command != "", step.Text != nil, step.Press != ""} {
		if on {
			set++
		}
	}
	if set != 1 {
		return errors.New("exactly one of command, text and press is required")
	}
	if step.Message != 0 && step.Press == "" {
		return errors.New("message is only valid with press")
	}
	for _, op := range step.Fail {
		if !slices.Contains(failOps, testutil.Op(op)) {
			return fmt.Errorf("unknown fail operation %q", op)
		}
	}
	if step.Expect != "" && !slices.Contains(outcomes, step.Expect) {
		return fmt.Errorf("unknown outcome %q", step.Expect)
	}
	return nil
}

func validateAssertion(a Assertion, auditChat int64) error {
	switch a.Type {
	case AssertCodeState, AssertCodeAbsent:
		if a.Code == "" {
			return fmt.Errorf("code is required for %s", a.Type)
		}
	case AssertCodeCount, AssertLedgerCount, AssertSessionCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("non-negative count is required for %s", a.Type)
		}
	case AssertAuditCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("non-negative count is required for %s", a.Type)
		}
		if auditChat == 0 {
			return errors.New("audit_count needs audit_chat")
		}
	case AssertLedgerContains:
		if a.Nickname == "" {
			return errors.New("nickname is required for ledger_contains")
		}
	case AssertMessageContains:
		if a.Chat == 0 || a.Contains == "" {
			return errors.New("chat and contains are required for message_contains")
		}
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
