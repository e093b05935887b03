package service

import (
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
	"github.com/noah-isme/sma-erp-api/pkg/validation"
)

// translateErr converts repository errors into API errors. Typed errors pass through,
// a missing row becomes NOT_FOUND with notFound as message, everything else is internal.
func translateErr(err error, notFound, internal string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}

func validateStruct(v *validator.Validate, payload interface{}, message string) error {
	if err := v.Struct(payload); err != nil {
		return validation.Error(err, message)
	}
	return nil
}

func fieldError(message, field, detail string) error {
	return appErrors.WithFields(nil, message, map[string]string{field: detail})
}
