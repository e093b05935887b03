package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
)

var (
	digitsPattern = regexp.MustCompile(`^[0-9]+$`)
	expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/([0-9]{2})$`)

	once  sync.Once
	trans ut.Translator
	base  *validator.Validate
	now   = time.Now
)

// New returns the shared validator: JSON field names, English messages and the
// school-specific tags (digits, card_expiry).
func New() *validator.Validate {
	once.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("digits", func(fl validator.FieldLevel) bool {
			return digitsPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("card_expiry", func(fl validator.FieldLevel) bool {
			return ValidExpiry(fl.Field().String(), now())
		})

		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")
		_ = en_translations.RegisterDefaultTranslations(v, trans)
		registerMessage(v, "digits", "{0} must contain digits only")
		registerMessage(v, "card_expiry", "{0} must be a future MM/YY date")
		base = v
	})
	return base
}

func registerMessage(v *validator.Validate, tag, text string) {
	_ = v.RegisterTranslation(tag, trans, func(u ut.Translator) error {
		return u.Add(tag, text, true)
	}, func(u ut.Translator, fe validator.FieldError) string {
		msg, _ := u.T(tag, fe.Field())
		return msg
	})
}

// ValidExpiry reports whether raw is an MM/YY expiry that has not passed at ref.
func ValidExpiry(raw string, ref time.Time) bool {
	m := expiryPattern.FindStringSubmatch(raw)
	if m == nil {
		return false
	}
	month := int(m[1][0]-'0')*10 + int(m[1][1]-'0')
	year := 2000 + int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	// a card is valid through the last day of its expiry month
	endOfMonth := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	return ref.UTC().Before(endOfMonth)
}

// Translate converts validator errors into a field -> message map.
func Translate(err error) map[string]string {
	if err == nil {
		return nil
	}
	New()
	fields := make(map[string]string)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}
	fields["detail"] = err.Error()
	return fields
}

// Error wraps a validation failure into the API error shape with per-field messages.
func Error(err error, message string) *appErrors.Error {
	return appErrors.WithFields(err, message, Translate(err))
}
