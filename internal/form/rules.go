package form

import (
	"regexp"

	"second-brain/internal/domain"

	"github.com/go-playground/validator/v10"
)

// Kind is the value shape a property type binds to in a form.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindDate   Kind = "date"
	KindID     Kind = "id"
	KindIDs    Kind = "ids"
	// KindComputed values are produced by the backend and never edited.
	KindComputed Kind = "computed"
)

// Rule describes how one property type is edited and validated.
type Rule struct {
	Kind   Kind
	Widget string
	// Format is a validator tag applied to non-empty string values.
	Format string
}

var rules = map[domain.PropertyType]Rule{
	domain.PropertyText:           {Kind: KindString, Widget: "text"},
	domain.PropertyNumber:         {Kind: KindNumber, Widget: "number"},
	domain.PropertySelect:         {Kind: KindID, Widget: "select"},
	domain.PropertyMultiSelect:    {Kind: KindIDs, Widget: "multiselect"},
	domain.PropertyDate:           {Kind: KindDate, Widget: "date"},
	domain.PropertyCheckbox:       {Kind: KindBool, Widget: "checkbox"},
	domain.PropertyURL:            {Kind: KindString, Widget: "url", Format: "url"},
	domain.PropertyEmail:          {Kind: KindString, Widget: "email", Format: "email"},
	domain.PropertyPhone:          {Kind: KindString, Widget: "tel", Format: "phone"},
	domain.PropertyRelation:       {Kind: KindIDs, Widget: "relation"},
	domain.PropertyFormula:        {Kind: KindComputed, Widget: "readonly"},
	domain.PropertyRollup:         {Kind: KindComputed, Widget: "readonly"},
	domain.PropertyCreatedTime:    {Kind: KindComputed, Widget: "readonly"},
	domain.PropertyLastEditedTime: {Kind: KindComputed, Widget: "readonly"},
	domain.PropertyCreatedBy:      {Kind: KindComputed, Widget: "readonly"},
	domain.PropertyLastEditedBy:   {Kind: KindComputed, Widget: "readonly"},
}

// RuleFor returns the rule of a property type.
func RuleFor(t domain.PropertyType) (Rule, bool) {
	r, ok := rules[t]
	return r, ok
}

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ().-]{5,18}[0-9]$`)

var formatMessages = map[string]string{
	"email": "must be a valid email address",
	"url":   "must be a valid URL",
	"phone": "must be a valid phone number",
}

// validate is safe for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}
