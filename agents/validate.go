package agents

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// validate checks model output structs. Field names in errors are the json
// names the model sees.
var validate *validator.Validate

var lineRangePattern = regexp.MustCompile(`^\s*(\d+)\s+to\s+(\d+)\s*$`)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("notblank", validators.NotBlank)
	_ = validate.RegisterValidation("linerange", validateLineRange)
}

func validateLineRange(fl validator.FieldLevel) bool {
	_, _, err := ParseLineRange(fl.Field().String())
	return err == nil
}

// ParseLineRange parses an inclusive "X to Y" range with X <= Y.
func ParseLineRange(s string) (int, int, error) {
	m := lineRangePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("line range %q does not match \"X to Y\"", s)
	}
	start, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, err
	}
	end, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, err
	}
	if start > end {
		return 0, 0, fmt.Errorf("line range %q starts after it ends", s)
	}
	return start, end, nil
}

// describeValidation turns validator errors into one readable line.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "notblank":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "linerange":
			parts = append(parts, fmt.Sprintf("%s %q must be \"X to Y\" with X <= Y", fe.Field(), fe.Value()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
