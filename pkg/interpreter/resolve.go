package interpreter

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/devicelab-dev/touchstone/pkg/core"
	"github.com/devicelab-dev/touchstone/pkg/logger"
)

// resolveElement finds the visible element whose text contains the given
// text, case-insensitively. On a miss it retries with a delay; once the
// attempts run out the error carries the full visible-element list and
// the closest fuzzy match as a hint.
func (r *caseRun) resolveElement(text string) (*core.Element, error) {
	attempts := r.in.cfg.ResolveAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastVisible []core.Element
	for attempt := 1; attempt <= attempts; attempt++ {
		elements, err := r.in.device.ListElements()
		if err != nil {
			logger.Warn("interpreter: element listing failed (attempt %d/%d): %v", attempt, attempts, err)
		} else {
			lastVisible = elements
			if el := matchElement(elements, text); el != nil {
				return el, nil
			}
		}

		if attempt < attempts {
			if err := r.sleepMs(r.in.cfg.ResolveDelayMs); err != nil {
				return nil, err
			}
		}
	}

	return nil, notFoundError(text, lastVisible)
}

// findElement is the single-shot variant used by conditionals and
// verifyAbsent.
func (r *caseRun) findElement(text string) (*core.Element, error) {
	elements, err := r.in.device.ListElements()
	if err != nil {
		return nil, err
	}
	return matchElement(elements, text), nil
}

// matchElement returns the first visible element whose text contains the
// wanted text, case-insensitively.
func matchElement(elements []core.Element, text string) *core.Element {
	want := strings.ToLower(text)
	for i := range elements {
		if strings.Contains(strings.ToLower(elements[i].Text), want) {
			return &elements[i]
		}
	}
	return nil
}

// notFoundError builds the diagnostic for an exhausted lookup: every
// visible text plus the single best fuzzy match.
func notFoundError(text string, visible []core.Element) error {
	texts := make([]string, len(visible))
	for i, el := range visible {
		texts[i] = el.Text
	}

	details := map[string]interface{}{
		"element": text,
		"visible": texts,
	}
	msg := fmt.Sprintf("element %q not found", text)

	if matches := fuzzy.Find(text, texts); len(matches) > 0 {
		hint := matches[0].Str
		details["hint"] = hint
		msg = fmt.Sprintf("element %q not found, did you mean %q?", text, hint)
	}

	return core.ErrElementNotFound.WithMessage(msg).WithDetails(details)
}
