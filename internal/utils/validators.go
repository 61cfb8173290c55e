package utils

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/counsel-dev/counsel/internal/errors"
)

// ContentValidator sanitizes and bounds user-supplied message text before
// it enters the log. Sanitation strips all markup; the log stores plain
// text only.
type ContentValidator struct {
	MaxLen int
	policy *bluemonday.Policy
}

func NewContentValidator(maxLen int) *ContentValidator {
	return &ContentValidator{MaxLen: maxLen, policy: bluemonday.StrictPolicy()}
}

func (v *ContentValidator) Content(text string) (string, error) {
	text = strings.TrimSpace(v.policy.Sanitize(text))
	if text == "" {
		return "", &errors.ValidationError{Message: "content must not be empty"}
	}
	if utf8.RuneCountInString(text) > v.MaxLen {
		return "", &errors.ValidationError{Message: "content is too long"}
	}
	return text, nil
}

type TitleValidator struct{}

func (e *TitleValidator) Title(title string) error {
	if strings.TrimSpace(title) == "" {
		return &errors.ValidationError{Message: "title must not be empty"}
	}
	if utf8.RuneCountInString(title) > 300 {
		return &errors.ErrorWithStatusCode{Message: "Title is too long", StatusCode: http.StatusBadRequest}
	}
	return nil
}
