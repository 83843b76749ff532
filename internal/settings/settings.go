// Package settings validates runtime threshold changes and applies them
// atomically: an update either replaces the whole configuration or leaves
// it untouched.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sweeney/plant-wall/internal/config"
)

// ValidationError names the offending field and why it was rejected.
type ValidationError = config.ValidationError

// Patch is a partial threshold update. Nil fields are left unchanged.
// Day values are in hours; watering and nutrient timings are in seconds.
type Patch struct {
	MoistureLow      *int     `json:"moisture_low" validate:"omitempty,min=0,max=1023"`
	MoistureHigh     *int     `json:"moisture_high" validate:"omitempty,min=0,max=1023"`
	LightThreshold   *int     `json:"light_threshold" validate:"omitempty,min=0,max=1023"`
	WaterLevelLow    *int     `json:"water_level_low" validate:"omitempty,min=0,max=100"`
	Brightness       *int     `json:"brightness" validate:"omitempty,min=0,max=100"`
	DayStart         *float64 `json:"day_start" validate:"omitempty,gte=0,lt=24"`
	DayDuration      *float64 `json:"day_duration" validate:"omitempty,gte=0"`
	NightDuration    *float64 `json:"night_duration" validate:"omitempty,gte=0"`
	WateringDuration *float64 `json:"watering_duration" validate:"omitempty,gt=0"`
	WateringInterval *float64 `json:"watering_interval" validate:"omitempty,gt=0"`
	NutrientAmount   *int     `json:"default_nutrient_amount" validate:"omitempty,min=0"`
	NutrientInterval *float64 `json:"nutrient_interval" validate:"omitempty,gte=0"`
}

// Fields returns the JSON names of the fields set in p.
func (p Patch) Fields() []string {
	var out []string
	v := reflect.ValueOf(p)
	for i := 0; i < v.NumField(); i++ {
		if !v.Field(i).IsNil() {
			out = append(out, jsonName(v.Type().Field(i)))
		}
	}
	return out
}

// merge returns t with every set field of p applied.
func (p Patch) merge(t config.Thresholds) config.Thresholds {
	setInt(&t.MoistureLow, p.MoistureLow)
	setInt(&t.MoistureHigh, p.MoistureHigh)
	setInt(&t.LightThreshold, p.LightThreshold)
	setInt(&t.WaterLevelLow, p.WaterLevelLow)
	setInt(&t.Brightness, p.Brightness)
	setInt(&t.NutrientAmount, p.NutrientAmount)
	setDuration(&t.DayStart, p.DayStart, time.Hour)
	setDuration(&t.DayDuration, p.DayDuration, time.Hour)
	setDuration(&t.NightDuration, p.NightDuration, time.Hour)
	setDuration(&t.WateringDuration, p.WateringDuration, time.Second)
	setDuration(&t.WateringInterval, p.WateringInterval, time.Second)
	setDuration(&t.NutrientInterval, p.NutrientInterval, time.Second)
	return t
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *float64, unit time.Duration) {
	if v != nil {
		*dst = time.Duration(*v * float64(unit))
	}
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

// Target holds the live thresholds. control.Loop satisfies it.
type Target interface {
	Thresholds() config.Thresholds
	SetThresholds(config.Thresholds)
}

// Intake applies patches to a Target.
type Intake struct {
	mu       sync.Mutex
	target   Target
	validate *validator.Validate
	log      *zap.Logger
}

// NewIntake returns an Intake writing to target.
func NewIntake(target Target, log *zap.Logger) *Intake {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	if log == nil {
		log = zap.NewNop()
	}
	return &Intake{target: target, validate: v, log: log}
}

// Apply validates p on its own and merged with the current thresholds, then
// swaps the result in. On error nothing changes and the error is a
// *ValidationError.
func (in *Intake) Apply(p Patch) error {
	if err := in.validate.Struct(p); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			return &ValidationError{Field: errs[0].Field(), Reason: reason(errs[0])}
		}
		return fmt.Errorf("validate settings: %w", err)
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	next := p.merge(in.target.Thresholds())
	if err := next.Validate(); err != nil {
		return err
	}
	in.target.SetThresholds(next)
	in.log.Info("settings applied", zap.Strings("fields", p.Fields()))
	return nil
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min", "gte":
		return "must be >= " + fe.Param()
	case "max", "lte":
		return "must be <= " + fe.Param()
	case "gt":
		return "must be > " + fe.Param()
	case "lt":
		return "must be < " + fe.Param()
	}
	return "failed " + fe.Tag()
}

// DecodePatch reads a JSON patch. Unknown fields and wrongly typed values
// are reported as *ValidationError.
func DecodePatch(r io.Reader) (Patch, error) {
	var p Patch
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &typeErr):
			return Patch{}, &ValidationError{Field: typeErr.Field, Reason: "must be a number"}
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
			return Patch{}, &ValidationError{Field: field, Reason: "unknown field"}
		case errors.Is(err, io.EOF):
			return Patch{}, &ValidationError{Field: "body", Reason: "empty request body"}
		}
		return Patch{}, &ValidationError{Field: "body", Reason: "invalid JSON"}
	}
	return p, nil
}
