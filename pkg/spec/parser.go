package spec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/touchstone/pkg/core"
)

// ParseError reports a structural problem in a test description with
// location info. It unwraps to core.ErrMalformedSpec.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Unwrap classifies every parse error as a malformed spec.
func (e *ParseError) Unwrap() error {
	return core.ErrMalformedSpec
}

// ParseFile parses a test description from a YAML file.
func ParseFile(path string) (*TestSpec, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided spec file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

// Parse parses a test description. Structural violations (unknown step
// kinds, malformed conditionals, invalid parameters) fail here, before
// any device is touched.
func Parse(data []byte, sourcePath string) (*TestSpec, error) {
	var raw struct {
		Target   string      `yaml:"target"`
		Setup    []yaml.Node `yaml:"setup"`
		Teardown []yaml.Node `yaml:"teardown"`
		Cases    []struct {
			Name        string      `yaml:"name"`
			Description string      `yaml:"description"`
			TimeoutMs   int         `yaml:"timeout"`
			Steps       []yaml.Node `yaml:"steps"`
		} `yaml:"cases"`
	}

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Path: sourcePath, Message: fmt.Sprintf("invalid YAML: %v", err)}
	}

	if raw.Target == "" {
		return nil, &ParseError{Path: sourcePath, Line: 1, Message: "missing target app id"}
	}

	ts := &TestSpec{
		Target:     raw.Target,
		SourcePath: sourcePath,
	}

	var err error
	if ts.Setup, err = parseStepList(raw.Setup, sourcePath); err != nil {
		return nil, err
	}
	if ts.Teardown, err = parseStepList(raw.Teardown, sourcePath); err != nil {
		return nil, err
	}

	for _, rc := range raw.Cases {
		if rc.Name == "" {
			return nil, &ParseError{Path: sourcePath, Message: "test case missing name"}
		}
		if rc.TimeoutMs < 0 {
			return nil, &ParseError{Path: sourcePath, Message: fmt.Sprintf("case %q: negative timeout", rc.Name)}
		}
		steps, err := parseStepList(rc.Steps, sourcePath)
		if err != nil {
			return nil, err
		}
		ts.Cases = append(ts.Cases, TestCase{
			Name:        rc.Name,
			Description: rc.Description,
			TimeoutMs:   rc.TimeoutMs,
			Steps:       steps,
		})
	}

	return ts, nil
}

func parseStepList(nodes []yaml.Node, sourcePath string) ([]Step, error) {
	var steps []Step
	for i := range nodes {
		step, err := parseStep(&nodes[i], sourcePath)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseStep(node *yaml.Node, sourcePath string) (Step, error) {
	// Bare scalars: steps whose parameters are all optional.
	if node.Kind == yaml.ScalarNode {
		switch Kind(node.Value) {
		case KindLaunchApp:
			return &LaunchAppStep{BaseStep: BaseStep{StepKind: KindLaunchApp}}, nil
		case KindTerminateApp:
			return &TerminateAppStep{BaseStep: BaseStep{StepKind: KindTerminateApp}}, nil
		}
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: fmt.Sprintf("unknown step: %s", node.Value),
		}
	}

	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "step must be a single-key mapping or a bare step name",
		}
	}

	kind := Kind(node.Content[0].Value)
	valueNode := node.Content[1]

	if !isKnownKind(kind) {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    node.Content[0].Line,
			Message: fmt.Sprintf("unknown step kind: %s", kind),
		}
	}

	return decodeStep(kind, valueNode, sourcePath)
}

func isKnownKind(k Kind) bool {
	switch k {
	case KindTap, KindDoubleTap, KindLongPress, KindSwipe, KindType,
		KindWait, KindWaitFor, KindPress, KindLaunchApp, KindTerminateApp,
		KindScreenshot, KindSetOrientation, KindOpenURL,
		KindVerifyScreen, KindVerifyElement, KindVerifyAbsent,
		KindIf, KindRetry, KindRepeat:
		return true
	}
	return false
}

//nolint:gocyclo
func decodeStep(kind Kind, valueNode *yaml.Node, sourcePath string) (Step, error) {
	switch kind {
	case KindTap, KindDoubleTap:
		target, note, err := decodeTargetValue(valueNode)
		if err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		return &TapStep{BaseStep: BaseStep{StepKind: kind, StepNote: note}, Target: target}, nil

	case KindLongPress:
		s := &LongPressStep{BaseStep: BaseStep{StepKind: kind}}
		if valueNode.Kind == yaml.MappingNode {
			var raw struct {
				Element  string    `yaml:"element"`
				Point    yaml.Node `yaml:"point"`
				Duration int       `yaml:"duration"`
				Note     string    `yaml:"note"`
			}
			if err := valueNode.Decode(&raw); err != nil {
				return nil, wrapParseError(sourcePath, valueNode.Line, err)
			}
			s.StepNote = raw.Note
			s.DurationMs = raw.Duration
			var err error
			if s.Target, err = decodeTargetFields(raw.Element, &raw.Point); err != nil {
				return nil, wrapParseError(sourcePath, valueNode.Line, err)
			}
		} else {
			target, err := decodeTarget(valueNode)
			if err != nil {
				return nil, wrapParseError(sourcePath, valueNode.Line, err)
			}
			s.Target = target
		}
		if s.DurationMs < 0 {
			return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: "longPress: negative duration"}
		}
		return s, nil

	case KindSwipe:
		s := &SwipeStep{BaseStep: BaseStep{StepKind: kind}}
		if valueNode.Kind == yaml.ScalarNode {
			s.Direction = valueNode.Value
		} else if err := valueNode.Decode(s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		switch s.Direction {
		case "up", "down", "left", "right":
		default:
			return nil, &ParseError{
				Path:    sourcePath,
				Line:    valueNode.Line,
				Message: fmt.Sprintf("swipe: invalid direction %q", s.Direction),
			}
		}
		return s, nil

	case KindType:
		s := &TypeStep{BaseStep: BaseStep{StepKind: kind}}
		if valueNode.Kind == yaml.ScalarNode {
			s.Text = valueNode.Value
		} else if err := valueNode.Decode(s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		if s.Text == "" {
			return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: "type: missing text"}
		}
		return s, nil

	case KindWait:
		var ms int
		if err := valueNode.Decode(&ms); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		if ms < 0 {
			return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: "wait: negative duration"}
		}
		return &WaitStep{BaseStep: BaseStep{StepKind: kind}, DurationMs: ms}, nil

	case KindWaitFor:
		s := &WaitForStep{BaseStep: BaseStep{StepKind: kind}}
		if valueNode.Kind == yaml.ScalarNode {
			s.Element = valueNode.Value
		} else if err := valueNode.Decode(s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		if s.Element == "" {
			return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: "waitFor: missing element"}
		}
		if s.TimeoutMs < 0 {
			return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: "waitFor: negative timeout"}
		}
		return s, nil

	case KindPress:
		if valueNode.Kind != yaml.ScalarNode || valueNode.Value == "" {
			return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: "press: missing button name"}
		}
		return &PressStep{BaseStep: BaseStep{StepKind: kind}, Button: valueNode.Value}, nil

	case KindLaunchApp:
		return &LaunchAppStep{BaseStep: BaseStep{StepKind: kind}, AppID: valueNode.Value}, nil

	case KindTerminateApp:
		return &TerminateAppStep{BaseStep: BaseStep{StepKind: kind}, AppID: valueNode.Value}, nil

	case KindScreenshot:
		if valueNode.Value == "" {
			return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: "screenshot: missing path"}
		}
		return &ScreenshotStep{BaseStep: BaseStep{StepKind: kind}, Path: valueNode.Value}, nil

	case KindSetOrientation:
		switch valueNode.Value {
		case "portrait", "landscape":
		default:
			return nil, &ParseError{
				Path:    sourcePath,
				Line:    valueNode.Line,
				Message: fmt.Sprintf("setOrientation: invalid orientation %q", valueNode.Value),
			}
		}
		return &SetOrientationStep{BaseStep: BaseStep{StepKind: kind}, Orientation: valueNode.Value}, nil

	case KindOpenURL:
		if valueNode.Value == "" {
			return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: "openUrl: missing url"}
		}
		return &OpenURLStep{BaseStep: BaseStep{StepKind: kind}, URL: valueNode.Value}, nil

	case KindVerifyScreen:
		if valueNode.Value == "" {
			return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: "verifyScreen: missing expectation"}
		}
		return &VerifyScreenStep{BaseStep: BaseStep{StepKind: kind}, Expectation: valueNode.Value}, nil

	case KindVerifyElement:
		s := &VerifyElementStep{BaseStep: BaseStep{StepKind: kind}}
		if valueNode.Kind == yaml.ScalarNode {
			s.Element = valueNode.Value
		} else if err := valueNode.Decode(s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		if s.Element == "" {
			return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: "verifyElement: missing element"}
		}
		return s, nil

	case KindVerifyAbsent:
		if valueNode.Value == "" {
			return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: "verifyAbsent: missing element"}
		}
		return &VerifyAbsentStep{BaseStep: BaseStep{StepKind: kind}, Element: valueNode.Value}, nil

	case KindIf:
		return parseIfStep(valueNode, sourcePath)

	case KindRetry:
		return parseRetryStep(valueNode, sourcePath)

	case KindRepeat:
		return parseRepeatStep(valueNode, sourcePath)
	}

	return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: fmt.Sprintf("unknown step kind: %s", kind)}
}

// decodeTargetValue handles the tap/doubleTap value: a bare target or a
// mapping with element/point plus a note.
func decodeTargetValue(valueNode *yaml.Node) (Target, string, error) {
	if valueNode.Kind == yaml.MappingNode {
		var raw struct {
			Element string    `yaml:"element"`
			Point   yaml.Node `yaml:"point"`
			Note    string    `yaml:"note"`
		}
		if err := valueNode.Decode(&raw); err != nil {
			return Target{}, "", err
		}
		target, err := decodeTargetFields(raw.Element, &raw.Point)
		return target, raw.Note, err
	}
	target, err := decodeTarget(valueNode)
	return target, "", err
}

func decodeTargetFields(element string, point *yaml.Node) (Target, error) {
	if element != "" && point.Kind != 0 {
		return Target{}, fmt.Errorf("target has both element and point")
	}
	if element != "" {
		return Target{Element: element}, nil
	}
	if point.Kind == 0 {
		return Target{}, fmt.Errorf("missing target")
	}
	return decodeTarget(point)
}

// parseIfStep decodes a conditional. Exactly one operator key, a
// mandatory then list, an optional else list, and nothing else.
func parseIfStep(valueNode *yaml.Node, sourcePath string) (Step, error) {
	if valueNode.Kind != yaml.MappingNode {
		return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: "if: must be a mapping"}
	}

	s := &IfStep{BaseStep: BaseStep{StepKind: KindIf}}
	var thenNode, elseNode *yaml.Node

	for i := 0; i < len(valueNode.Content)-1; i += 2 {
		key := valueNode.Content[i].Value
		val := valueNode.Content[i+1]

		switch key {
		case "then":
			thenNode = val
		case "else":
			elseNode = val
		case "note":
			s.StepNote = val.Value
		case string(CondPresent), string(CondAbsent), string(CondAllPresent),
			string(CondAnyPresent), string(CondScreenMatches):
			if s.Operator != "" {
				return nil, &ParseError{
					Path:    sourcePath,
					Line:    valueNode.Content[i].Line,
					Message: fmt.Sprintf("if: multiple operators (%s and %s)", s.Operator, key),
				}
			}
			s.Operator = CondOperator(key)
			targets, err := decodeCondTargets(s.Operator, val)
			if err != nil {
				return nil, wrapParseError(sourcePath, val.Line, err)
			}
			s.Targets = targets
		default:
			return nil, &ParseError{
				Path:    sourcePath,
				Line:    valueNode.Content[i].Line,
				Message: fmt.Sprintf("if: unknown key %q", key),
			}
		}
	}

	if s.Operator == "" {
		return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: "if: missing operator"}
	}
	if thenNode == nil {
		return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: "if: missing then branch"}
	}

	var err error
	if s.Then, err = parseBranch(thenNode, "then", sourcePath); err != nil {
		return nil, err
	}
	if elseNode != nil {
		s.HasElse = true
		if s.Else, err = parseBranch(elseNode, "else", sourcePath); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func decodeCondTargets(op CondOperator, val *yaml.Node) ([]string, error) {
	switch op {
	case CondAllPresent, CondAnyPresent:
		if val.Kind != yaml.SequenceNode || len(val.Content) == 0 {
			return nil, fmt.Errorf("%s: requires a non-empty list of elements", op)
		}
		targets := make([]string, 0, len(val.Content))
		for _, n := range val.Content {
			if n.Value == "" {
				return nil, fmt.Errorf("%s: empty element text", op)
			}
			targets = append(targets, n.Value)
		}
		return targets, nil
	default:
		if val.Kind != yaml.ScalarNode || val.Value == "" {
			return nil, fmt.Errorf("%s: requires a single value", op)
		}
		return []string{val.Value}, nil
	}
}

func parseBranch(node *yaml.Node, name, sourcePath string) ([]Step, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: fmt.Sprintf("if: %s branch must be a list", name),
		}
	}
	var steps []Step
	for _, n := range node.Content {
		step, err := parseStep(n, sourcePath)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseRetryStep(valueNode *yaml.Node, sourcePath string) (Step, error) {
	var raw struct {
		Attempts int         `yaml:"attempts"`
		DelayMs  int         `yaml:"delay"`
		Steps    []yaml.Node `yaml:"steps"`
	}
	if err := valueNode.Decode(&raw); err != nil {
		return nil, wrapParseError(sourcePath, valueNode.Line, err)
	}
	if raw.Attempts < 1 {
		return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: "retry: attempts must be at least 1"}
	}
	if raw.DelayMs < 0 {
		return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: "retry: negative delay"}
	}

	s := &RetryStep{
		BaseStep: BaseStep{StepKind: KindRetry},
		Attempts: raw.Attempts,
		DelayMs:  raw.DelayMs,
	}
	for i := range raw.Steps {
		step, err := parseStep(&raw.Steps[i], sourcePath)
		if err != nil {
			return nil, err
		}
		s.Steps = append(s.Steps, step)
	}
	return s, nil
}

func parseRepeatStep(valueNode *yaml.Node, sourcePath string) (Step, error) {
	var raw struct {
		Times int         `yaml:"times"`
		Steps []yaml.Node `yaml:"steps"`
	}
	if err := valueNode.Decode(&raw); err != nil {
		return nil, wrapParseError(sourcePath, valueNode.Line, err)
	}
	if raw.Times < 1 {
		return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: "repeat: times must be at least 1"}
	}

	s := &RepeatStep{
		BaseStep: BaseStep{StepKind: KindRepeat},
		Times:    raw.Times,
	}
	for i := range raw.Steps {
		step, err := parseStep(&raw.Steps[i], sourcePath)
		if err != nil {
			return nil, err
		}
		s.Steps = append(s.Steps, step)
	}
	return s, nil
}

func wrapParseError(path string, line int, err error) error {
	return &ParseError{
		Path:    path,
		Line:    line,
		Message: err.Error(),
	}
}
