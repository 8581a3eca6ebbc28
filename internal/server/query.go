package server

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	arrdomain "github.com/smallbiznis/saasops/internal/arr/domain"
	"github.com/smallbiznis/saasops/internal/arr/engine"
)

var queryValidate *validator.Validate

func init() {
	queryValidate = validator.New()
	queryValidate.RegisterTagNameFunc(func(field reflect.StructField) string {
		return formName(field.Tag.Get("form"))
	})
	_ = queryValidate.RegisterValidation("timeframe", validateTimeframe)
	_ = queryValidate.RegisterValidation("sampleday", validateSampleDay)
}

// reportQuery is the query string shared by every report endpoint.
type reportQuery struct {
	Date        string `form:"date" validate:"omitempty,datetime=2006-01-02"`
	Start       string `form:"start" validate:"omitempty,datetime=2006-01-02"`
	End         string `form:"end" validate:"omitempty,datetime=2006-01-02"`
	Timeframe   string `form:"timeframe" validate:"omitempty,timeframe"`
	Sample      string `form:"sample" validate:"omitempty,sampleday"`
	Exclusion   string `form:"exclusion" validate:"omitempty,oneof=global active"`
	Customer    string `form:"customer" validate:"omitempty,numeric"`
	Contract    string `form:"contract" validate:"omitempty,numeric"`
	IgnoreZeros string `form:"ignore_zeros" validate:"omitempty,boolean"`
}

func validateTimeframe(fl validator.FieldLevel) bool {
	_, err := engine.ParseTimeframe(fl.Field().String())
	return err == nil
}

func validateSampleDay(fl validator.FieldLevel) bool {
	_, err := engine.ParseSampleDay(strings.ToLower(strings.TrimSpace(fl.Field().String())))
	return err == nil
}

func bindReportQuery(c *gin.Context) (reportQuery, error) {
	var query reportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		return query, invalidRequestError()
	}
	if err := queryValidate.Struct(query); err != nil {
		return query, toValidationErrors(err)
	}
	return query, nil
}

func toValidationErrors(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return invalidRequestError()
	}
	out := &ValidationErrors{}
	for _, fe := range fieldErrs {
		out.Errors = append(out.Errors, ValidationError{
			Field:   fe.Field(),
			Code:    "invalid_" + fe.Field(),
			Message: "invalid " + fe.Field(),
		})
	}
	return out
}

func (q reportQuery) scope() (arrdomain.Scope, error) {
	var scope arrdomain.Scope

	customerID, err := parseOptionalSnowflakeID(q.Customer)
	if err != nil {
		return scope, newValidationError("customer", "invalid_customer", "invalid customer")
	}
	if customerID != nil {
		scope.CustomerID = *customerID
	}

	contractID, err := parseOptionalSnowflakeID(q.Contract)
	if err != nil {
		return scope, newValidationError("contract", "invalid_contract", "invalid contract")
	}
	if contractID != nil {
		scope.ContractID = *contractID
	}

	ignoreZeros, err := parseOptionalBool(q.IgnoreZeros)
	if err != nil {
		return scope, newValidationError("ignore_zeros", "invalid_ignore_zeros", "invalid ignore_zeros")
	}
	scope.IgnoreZeros = ignoreZeros
	scope.Exclusion = arrdomain.ExclusionScope(strings.ToLower(strings.TrimSpace(q.Exclusion)))
	return scope, nil
}

func (q reportQuery) pointRequest() (arrdomain.PointRequest, error) {
	scope, err := q.scope()
	if err != nil {
		return arrdomain.PointRequest{}, err
	}
	return arrdomain.PointRequest{
		Scope:     scope,
		Date:      parseDay(q.Date),
		Timeframe: timeframeOf(q.Timeframe),
		Sample:    arrdomain.SampleDay(strings.ToLower(strings.TrimSpace(q.Sample))),
	}, nil
}

func (q reportQuery) rangeRequest() (arrdomain.RangeRequest, error) {
	scope, err := q.scope()
	if err != nil {
		return arrdomain.RangeRequest{}, err
	}
	return arrdomain.RangeRequest{
		Scope:     scope,
		Start:     parseDay(q.Start),
		End:       parseDay(q.End),
		Timeframe: timeframeOf(q.Timeframe),
		Sample:    arrdomain.SampleDay(strings.ToLower(strings.TrimSpace(q.Sample))),
	}, nil
}

func timeframeOf(raw string) arrdomain.Timeframe {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	tf, _ := engine.ParseTimeframe(raw)
	return tf
}

// parseDay returns the zero time for an empty value; the validator has
// already rejected malformed dates.
func parseDay(value string) time.Time {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.DateOnly, trimmed)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed == 0 {
		return nil, errors.New("invalid_snowflake_id")
	}
	return &parsed, nil
}

func formName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	return name
}
