package build

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

// Options is the generator configuration document supplied by the caller.
// Keys the service doesn't know are passed to the generator as is.
type Options map[string]any

// reservedOptions are set by the service on every build.
var reservedOptions = []string{
	"agencies",
	"outputPath",
	"templatePath",
	"zipOutput",
	"verbose",
	"sqlitePath",
	"skipImport",
	"logFunction",
}

// DefaultOptions returns a new copy of the default options document.
func DefaultOptions() Options {
	return Options{
		"outputFormat":                 "html",
		"beautify":                     false,
		"noHead":                       false,
		"showRouteTitle":               true,
		"showMap":                      true,
		"showCalendarExceptions":       true,
		"showDuplicateTrips":           false,
		"showOnlyTimepoint":            false,
		"showStopCity":                 false,
		"showStopDescription":          false,
		"showStoptimesForRequestStops": true,
		"linkStopUrls":                 false,
		"groupTimetablesIntoPages":     true,
		"allowEmptyTimetables":         false,
		"defaultOrientation":           "vertical",
		"menuType":                     "radio",
		"sortingAlgorithm":             "common",
		"dateFormat":                   "MMM D, YYYY",
		"timeFormat":                   "h:mma",
		"daysStrings":                  []any{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"},
		"daysShortStrings":             []any{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"},
		"serviceProvidedOnText":        "Service provided on",
		"serviceNotProvidedOnText":     "Service not provided on",
		"noRegularServiceDaysText":     "No regular service days",
		"noServiceSymbol":              "—",
		"noServiceText":                "No service at this stop",
		"noPickupSymbol":               "**",
		"noPickupText":                 "No pickup available",
		"noDropoffSymbol":              "‡",
		"noDropoffText":                "No drop off available",
		"requestPickupSymbol":          "***",
		"requestPickupText":            "Request stop - call for pickup",
		"requestDropoffSymbol":         "†",
		"requestDropoffText":           "Must request drop off",
		"interpolatedStopSymbol":       "•",
		"interpolatedStopText":         "Estimated time of arrival",
		"coordinatePrecision":          5,
		"useParentStation":             true,
		"mapStyleUrl":                  "https://tiles.openfreemap.org/styles/positron",
		"startDate":                    "",
		"endDate":                      "",
	}
}

// ParseOptions parses a JSON-encoded options document.
// An empty string is no options.
func ParseOptions(raw string) (Options, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, newError(KindInvalidInput, "Invalid options JSON. Check the syntax and try again.", err)
	}
	if dec.More() {
		return nil, newError(KindInvalidInput, "Invalid options JSON. Check the syntax and try again.", errors.New("multiple top-level values"))
	}
	o, ok := v.(map[string]any)
	if !ok {
		return nil, newError(KindInvalidInput, "Invalid options: expected a JSON object", nil)
	}
	return Options(o), nil
}

// DecodeOptions accepts options as a JSON object or as a string holding one.
func DecodeOptions(raw json.RawMessage) (Options, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, newError(KindInvalidInput, "Invalid options JSON. Check the syntax and try again.", err)
		}
		return ParseOptions(s)
	}
	return ParseOptions(string(raw))
}

// MergeOptions returns a new document with supplied keys laid over defaults.
// Neither argument is modified.
func MergeOptions(defaults, supplied Options) Options {
	merged := make(Options, len(defaults)+len(supplied))
	maps.Copy(merged, defaults)
	maps.Copy(merged, supplied)
	return merged
}

// PrepareOptions merges supplied over the defaults, drops reserved keys and
// validates the result.
func PrepareOptions(supplied Options) (Options, error) {
	merged := MergeOptions(DefaultOptions(), supplied)
	for _, k := range reservedOptions {
		delete(merged, k)
	}
	if err := ValidateOptions(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// optionsSchema lists the options this service checks.
// Absent and zero values are not checked.
type optionsSchema struct {
	OutputFormat             string   `json:"outputFormat" validate:"omitempty,oneof=html pdf csv"`
	DefaultOrientation       string   `json:"defaultOrientation" validate:"omitempty,oneof=vertical horizontal hourly"`
	MenuType                 string   `json:"menuType" validate:"omitempty,oneof=jump simple radio"`
	SortingAlgorithm         string   `json:"sortingAlgorithm" validate:"omitempty,oneof=common beginning end first last"`
	DateFormat               string   `json:"dateFormat"`
	TimeFormat               string   `json:"timeFormat"`
	StartDate                string   `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate                  string   `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	DaysStrings              []string `json:"daysStrings" validate:"omitempty,len=7"`
	DaysShortStrings         []string `json:"daysShortStrings" validate:"omitempty,len=7"`
	CoordinatePrecision      float64  `json:"coordinatePrecision" validate:"omitempty,min=0,max=10"`
	ShowArrivalOnDifference  float64  `json:"showArrivalOnDifference" validate:"omitempty,min=0"`
	MapStyleURL              string   `json:"mapStyleUrl" validate:"omitempty,url"`
	Beautify                 bool     `json:"beautify"`
	NoHead                   bool     `json:"noHead"`
	ShowRouteTitle           bool     `json:"showRouteTitle"`
	ShowMap                  bool     `json:"showMap"`
	ShowOnlyTimepoint        bool     `json:"showOnlyTimepoint"`
	ShowStopCity             bool     `json:"showStopCity"`
	ShowStopDescription      bool     `json:"showStopDescription"`
	LinkStopURLs             bool     `json:"linkStopUrls"`
	AllowEmptyTimetables     bool     `json:"allowEmptyTimetables"`
	UseParentStation         bool     `json:"useParentStation"`
	GroupTimetablesIntoPages bool     `json:"groupTimetablesIntoPages"`
	Exclude                  []string `json:"exclude"`
}

// ValidateOptions checks the type and format of the options it knows.
func ValidateOptions(o Options) error {
	b, err := json.Marshal(o)
	if err != nil {
		return newError(KindInvalidInput, "Invalid options", err)
	}
	var schema optionsSchema
	if err = json.NewDecoder(bytes.NewReader(b)).Decode(&schema); err != nil {
		if typeErr := (*json.UnmarshalTypeError)(nil); errors.As(err, &typeErr) {
			return newError(KindInvalidInput, fmt.Sprintf("Invalid options: %s must be of type %s", typeErr.Field, typeErr.Type), err)
		}
		return newError(KindInvalidInput, "Invalid options", err)
	}
	if err = optionsValidator().validate.Struct(&schema); err != nil {
		return newError(KindInvalidInput, "Invalid options: "+optionsValidator().message(err), err)
	}
	return nil
}

type validatorService struct {
	validate *validator.Validate
	trans    ut.Translator
}

var (
	validatorOnce sync.Once
	validatorSvc  *validatorService
)

func optionsValidator() *validatorService {
	validatorOnce.Do(func() {
		enLocale := en.New()
		trans, _ := ut.New(enLocale, enLocale).GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		_ = entranslations.RegisterDefaultTranslations(v, trans)

		validatorSvc = &validatorService{validate: v, trans: trans}
	})
	return validatorSvc
}

// message returns the translated message of the first validation error.
func (s *validatorService) message(err error) string {
	if verrs := (validator.ValidationErrors)(nil); errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Translate(s.trans)
	}
	return err.Error()
}
