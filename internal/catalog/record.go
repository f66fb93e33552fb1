package catalog

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Record is one close-approach observation. Designation is not unique: the same
// object may approach Earth several times.
type Record struct {
	Designation       string    `json:"designation" validate:"required"`
	ApproachTime      time.Time `json:"approach_date" validate:"required"`
	DistanceAU        float64   `json:"distance_au" validate:"finite,gte=0"`
	VelocityKmS       float64   `json:"velocity_km_s" validate:"finite,gte=0"`
	AbsoluteMagnitude *float64  `json:"absolute_magnitude,omitempty" validate:"omitnil,finite"`
}

// RecordKey identifies a record by designation and approach instant.
type RecordKey struct {
	Designation  string
	ApproachTime time.Time
}

// Key returns the composite identity of the record.
func (r Record) Key() RecordKey {
	return RecordKey{Designation: r.Designation, ApproachTime: r.ApproachTime.UTC()}
}

// Dangerous reports whether the approach falls within DangerThresholdAU.
func (r Record) Dangerous() bool {
	return r.DistanceAU <= DangerThresholdAU
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func recordValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
			field := fl.Field()
			if field.Kind() == reflect.Pointer {
				if field.IsNil() {
					return true
				}
				field = field.Elem()
			}
			switch field.Kind() {
			case reflect.Float32, reflect.Float64:
				f := field.Float()
				return !math.IsNaN(f) && !math.IsInf(f, 0)
			default:
				return true
			}
		})
		validate = v
	})
	return validate
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Designation) == "" {
		return &ValidationError{Field: "designation", Reason: "required"}
	}
	if err := recordValidator().Struct(r); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{Field: fe.Field(), Reason: fe.Tag()}
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// Sanitize keeps the records that pass Validate, preserving order. Rejections
// are returned for logging; they never abort the batch.
func Sanitize(records []Record) ([]Record, []error) {
	valid := make([]Record, 0, len(records))
	var rejected []error
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			rejected = append(rejected, fmt.Errorf("record %d (%q): %w", i, rec.Designation, err))
			continue
		}
		valid = append(valid, rec)
	}
	return valid, rejected
}
