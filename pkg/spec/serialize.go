package spec

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Serialize renders a test description back to YAML. The output uses the
// shortest form each step admits, so parsing the result yields an
// identical structure (serialization is round-trip idempotent).
func Serialize(ts *TestSpec) ([]byte, error) {
	root := newMapNode()
	appendPair(root, "target", scalarNode(ts.Target))

	if len(ts.Setup) > 0 {
		appendPair(root, "setup", encodeStepList(ts.Setup))
	}
	if len(ts.Teardown) > 0 {
		appendPair(root, "teardown", encodeStepList(ts.Teardown))
	}

	cases := &yaml.Node{Kind: yaml.SequenceNode}
	for _, c := range ts.Cases {
		cn := newMapNode()
		appendPair(cn, "name", scalarNode(c.Name))
		if c.Description != "" {
			appendPair(cn, "description", scalarNode(c.Description))
		}
		if c.TimeoutMs > 0 {
			appendPair(cn, "timeout", intNode(c.TimeoutMs))
		}
		appendPair(cn, "steps", encodeStepList(c.Steps))
		cases.Content = append(cases.Content, cn)
	}
	appendPair(root, "cases", cases)

	return yaml.Marshal(root)
}

func encodeStepList(steps []Step) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, s := range steps {
		seq.Content = append(seq.Content, encodeStep(s))
	}
	return seq
}

//nolint:gocyclo
func encodeStep(s Step) *yaml.Node {
	switch st := s.(type) {
	case *TapStep:
		if st.StepNote == "" {
			return kindNode(st.StepKind, encodeTarget(st.Target))
		}
		params := newMapNode()
		appendTargetPair(params, st.Target)
		appendPair(params, "note", scalarNode(st.StepNote))
		return kindNode(st.StepKind, params)

	case *LongPressStep:
		if st.DurationMs == 0 && st.StepNote == "" {
			return kindNode(KindLongPress, encodeTarget(st.Target))
		}
		params := newMapNode()
		appendTargetPair(params, st.Target)
		if st.DurationMs > 0 {
			appendPair(params, "duration", intNode(st.DurationMs))
		}
		if st.StepNote != "" {
			appendPair(params, "note", scalarNode(st.StepNote))
		}
		return kindNode(KindLongPress, params)

	case *SwipeStep:
		if st.Distance == 0 && st.StepNote == "" {
			return kindNode(KindSwipe, scalarNode(st.Direction))
		}
		params := newMapNode()
		appendPair(params, "direction", scalarNode(st.Direction))
		if st.Distance > 0 {
			appendPair(params, "distance", intNode(st.Distance))
		}
		if st.StepNote != "" {
			appendPair(params, "note", scalarNode(st.StepNote))
		}
		return kindNode(KindSwipe, params)

	case *TypeStep:
		if !st.Submit && st.StepNote == "" {
			return kindNode(KindType, scalarNode(st.Text))
		}
		params := newMapNode()
		appendPair(params, "text", scalarNode(st.Text))
		if st.Submit {
			appendPair(params, "submit", boolNode(true))
		}
		if st.StepNote != "" {
			appendPair(params, "note", scalarNode(st.StepNote))
		}
		return kindNode(KindType, params)

	case *WaitStep:
		return kindNode(KindWait, intNode(st.DurationMs))

	case *WaitForStep:
		if st.TimeoutMs == 0 && st.StepNote == "" {
			return kindNode(KindWaitFor, scalarNode(st.Element))
		}
		params := newMapNode()
		appendPair(params, "element", scalarNode(st.Element))
		if st.TimeoutMs > 0 {
			appendPair(params, "timeout", intNode(st.TimeoutMs))
		}
		if st.StepNote != "" {
			appendPair(params, "note", scalarNode(st.StepNote))
		}
		return kindNode(KindWaitFor, params)

	case *PressStep:
		return kindNode(KindPress, scalarNode(st.Button))

	case *LaunchAppStep:
		if st.AppID == "" {
			return scalarNode(string(KindLaunchApp))
		}
		return kindNode(KindLaunchApp, scalarNode(st.AppID))

	case *TerminateAppStep:
		if st.AppID == "" {
			return scalarNode(string(KindTerminateApp))
		}
		return kindNode(KindTerminateApp, scalarNode(st.AppID))

	case *ScreenshotStep:
		return kindNode(KindScreenshot, scalarNode(st.Path))

	case *SetOrientationStep:
		return kindNode(KindSetOrientation, scalarNode(st.Orientation))

	case *OpenURLStep:
		return kindNode(KindOpenURL, scalarNode(st.URL))

	case *VerifyScreenStep:
		return kindNode(KindVerifyScreen, scalarNode(st.Expectation))

	case *VerifyElementStep:
		if st.Contains == "" && st.StepNote == "" {
			return kindNode(KindVerifyElement, scalarNode(st.Element))
		}
		params := newMapNode()
		appendPair(params, "element", scalarNode(st.Element))
		if st.Contains != "" {
			appendPair(params, "contains", scalarNode(st.Contains))
		}
		if st.StepNote != "" {
			appendPair(params, "note", scalarNode(st.StepNote))
		}
		return kindNode(KindVerifyElement, params)

	case *VerifyAbsentStep:
		return kindNode(KindVerifyAbsent, scalarNode(st.Element))

	case *IfStep:
		params := newMapNode()
		switch st.Operator {
		case CondAllPresent, CondAnyPresent:
			seq := &yaml.Node{Kind: yaml.SequenceNode}
			for _, t := range st.Targets {
				seq.Content = append(seq.Content, scalarNode(t))
			}
			appendPair(params, string(st.Operator), seq)
		default:
			appendPair(params, string(st.Operator), scalarNode(st.Targets[0]))
		}
		appendPair(params, "then", encodeStepList(st.Then))
		if st.HasElse {
			appendPair(params, "else", encodeStepList(st.Else))
		}
		if st.StepNote != "" {
			appendPair(params, "note", scalarNode(st.StepNote))
		}
		return kindNode(KindIf, params)

	case *RetryStep:
		params := newMapNode()
		appendPair(params, "attempts", intNode(st.Attempts))
		if st.DelayMs > 0 {
			appendPair(params, "delay", intNode(st.DelayMs))
		}
		appendPair(params, "steps", encodeStepList(st.Steps))
		return kindNode(KindRetry, params)

	case *RepeatStep:
		params := newMapNode()
		appendPair(params, "times", intNode(st.Times))
		appendPair(params, "steps", encodeStepList(st.Steps))
		return kindNode(KindRepeat, params)
	}

	// Unreachable for steps produced by this package.
	return scalarNode(fmt.Sprintf("<unknown step %s>", s.Kind()))
}

func appendTargetPair(params *yaml.Node, t Target) {
	if t.Element != "" {
		appendPair(params, "element", scalarNode(t.Element))
	} else {
		appendPair(params, "point", encodeTarget(t))
	}
}

func kindNode(kind Kind, value *yaml.Node) *yaml.Node {
	m := newMapNode()
	appendPair(m, string(kind), value)
	return m
}

func newMapNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode}
}

func appendPair(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, scalarNode(key), value)
}

func boolNode(v bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: fmt.Sprintf("%t", v)}
}
