package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// googleSignInRequest is the body of POST /api/auth/google. Profile fields
// sent by older clients are accepted and ignored; the profile comes from Google.
type googleSignInRequest struct {
	AccessToken string `json:"accessToken" validate:"required,max=4096"`
	TokenType   string `json:"tokenType" validate:"omitempty,max=32"`
	ExpiresIn   int64  `json:"expiresIn" validate:"gte=0"`

	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	Sub     string `json:"sub,omitempty"`
}

type renameRequest struct {
	NewFileName string `json:"newFileName" validate:"required"`
}

type starRequest struct {
	Starred *bool `json:"starred" validate:"required"`
}

var errInvalidJSON = errors.New("invalid JSON body")

// decodeAndValidate reads a bounded JSON body into dst and runs its
// validation tags.
func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		return errInvalidJSON
	}
	return validate.Struct(dst)
}

// firstViolation returns the json field and tag of the first failed rule.
func firstViolation(err error) (field, tag string, ok bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "", "", false
	}
	return verrs[0].Field(), verrs[0].Tag(), true
}

func validationMessage(err error) string {
	field, tag, ok := firstViolation(err)
	if !ok {
		return err.Error()
	}
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s is too long", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
