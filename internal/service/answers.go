package service

import (
	"fmt"
	"strings"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
)

// validateAnswers checks a registrant's answers against the event form:
// required fields must be answered, choice answers must name declared
// options, and keys must match declared field ids.
func validateAnswers(fields model.FormFields, answers model.Answers) *ValidationError {
	problems := map[string]string{}
	known := make(map[string]model.FormField, len(fields))
	for _, f := range fields {
		known[f.ID] = f
	}

	for key := range answers {
		if _, ok := known[key]; !ok {
			problems["answers."+key] = "unknown form field"
		}
	}

	for _, f := range fields {
		raw, present := answers[f.ID]
		if !present || isBlank(raw) {
			if f.Required {
				problems["answers."+f.ID] = "is required"
			}
			continue
		}
		switch f.Type {
		case model.FieldSelect:
			s, ok := raw.(string)
			if !ok {
				problems["answers."+f.ID] = "must be a single option"
				continue
			}
			if len(f.Options) > 0 && !contains(f.Options, s) {
				problems["answers."+f.ID] = fmt.Sprintf("must be one of %s", strings.Join(f.Options, ", "))
			}
		case model.FieldCheckbox:
			choices := answers.Choices(f.ID)
			if _, isString := raw.(string); !isString && len(choices) == 0 {
				problems["answers."+f.ID] = "must be a list of options"
				continue
			}
			for _, c := range choices {
				if len(f.Options) > 0 && !contains(f.Options, c) {
					problems["answers."+f.ID] = fmt.Sprintf("must only contain %s", strings.Join(f.Options, ", "))
					break
				}
			}
		default:
			if _, ok := raw.(string); !ok {
				problems["answers."+f.ID] = "must be text"
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Fields: problems}
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
