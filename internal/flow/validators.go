package flow

import (
	"github.com/feedlotops/weighbot/internal/models"
	"github.com/feedlotops/weighbot/internal/validate"
)

// Adapters lifting the pure validators into transition validators.

// IdentityValidator validates an identity number field.
func IdentityValidator() Validator {
	return func(_ *models.Session, raw string) (models.FieldValue, error) {
		id, err := validate.Identity(raw)
		if err != nil {
			return models.FieldValue{}, err
		}
		return models.StringValue(id), nil
	}
}

// PlateValidator validates and normalizes a vehicle plate field.
func PlateValidator() Validator {
	return func(_ *models.Session, raw string) (models.FieldValue, error) {
		plate, err := validate.Plate(raw)
		if err != nil {
			return models.FieldValue{}, err
		}
		return models.StringValue(plate), nil
	}
}

// WeightValidator validates a decimal weight field under the given rule.
func WeightValidator(rule validate.WeightRule) Validator {
	return func(_ *models.Session, raw string) (models.FieldValue, error) {
		w, err := rule.Parse(raw)
		if err != nil {
			return models.FieldValue{}, err
		}
		return models.DecimalValue(w), nil
	}
}

// CountValidator validates an integer count field under the given rule.
func CountValidator(rule validate.CountRule) Validator {
	return func(_ *models.Session, raw string) (models.FieldValue, error) {
		n, err := rule.Parse(raw)
		if err != nil {
			return models.FieldValue{}, err
		}
		return models.IntValue(n), nil
	}
}

// RangeValidator validates an "A-B" range field; the bounds ride in the
// value's Int and Int2 slots.
func RangeValidator(rule validate.RangeRule) Validator {
	return func(_ *models.Session, raw string) (models.FieldValue, error) {
		rng, err := rule.Parse(raw)
		if err != nil {
			return models.FieldValue{}, err
		}
		return models.FieldValue{Kind: models.FieldString, Text: raw, Int: int64(rng.Start), Int2: int64(rng.End)}, nil
	}
}

// LotCodeValidator validates a lot code field.
func LotCodeValidator() Validator {
	return func(_ *models.Session, raw string) (models.FieldValue, error) {
		code, err := validate.LotCode(raw)
		if err != nil {
			return models.FieldValue{}, err
		}
		return models.StringValue(code), nil
	}
}

// IndexValidator validates an integer index against a fixed allowed set.
func IndexValidator(rule validate.IndexRule) Validator {
	return func(_ *models.Session, raw string) (models.FieldValue, error) {
		idx, err := rule.Parse(raw)
		if err != nil {
			return models.FieldValue{}, err
		}
		return models.IntValue(int64(idx)), nil
	}
}

// tagValidator records a fixed enumerated tag for an already-classified
// input, keeping the stored value independent of the operator's synonym.
func tagValidator(tag string) Validator {
	return func(_ *models.Session, _ string) (models.FieldValue, error) {
		return models.TagValue(tag), nil
	}
}
