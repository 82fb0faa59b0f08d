package debate

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"roundtable/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Params are the client-supplied inputs that start a session.
type Params struct {
	Question string   `validate:"required"`
	Models   []string `validate:"dive,required"`
	Rounds   int      `validate:"gte=1"`
	Thinking bool
}

// Validate checks p against maxRounds. Failures wrap domain.ErrInvalidInput.
func (p Params) Validate(maxRounds int) error {
	if err := validate.Struct(p); err != nil {
		return paramsError(describeValidation(err))
	}
	if maxRounds > 0 && p.Rounds > maxRounds {
		return paramsError(fmt.Sprintf("rounds must be at most %d", maxRounds))
	}
	return nil
}

// ParseParams reads session parameters from a query string. Missing rounds
// fall back to defaultRounds; a missing models list selects nobody and is
// left for the caller to default.
func ParseParams(q url.Values, defaultRounds int) (Params, error) {
	p := Params{
		Question: strings.TrimSpace(q.Get("question")),
		Models:   SplitModels(q.Get("models")),
		Rounds:   defaultRounds,
	}
	if raw := strings.TrimSpace(q.Get("rounds")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Params{}, paramsError(fmt.Sprintf("rounds %q is not an integer", raw))
		}
		p.Rounds = n
	}
	if raw := strings.TrimSpace(q.Get("thinking")); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Params{}, paramsError(fmt.Sprintf("thinking %q is not a boolean", raw))
		}
		p.Thinking = b
	}
	return p, nil
}

// SplitModels splits a comma-separated id list, trimming blanks and
// keeping order.
func SplitModels(csv string) []string {
	return lo.Compact(lo.Map(strings.Split(csv, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
}

func paramsError(detail string) error {
	return domain.NewSubSystemError("debate", "Params.Validate", domain.ErrInvalidInput, detail)
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
		field := strings.ToLower(fe.StructField())
		switch fe.Tag() {
		case "required":
			return field + " is required"
		case "gte":
			return fmt.Sprintf("%s must be at least %s", field, fe.Param())
		default:
			return fmt.Sprintf("%s failed %s", field, fe.Tag())
		}
	})
	return strings.Join(msgs, "; ")
}
