// Package validation checks signup and login submissions before any store
// is touched.
package validation

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Kind tells a missing field apart from a value with the wrong shape.
type Kind int

const (
	KindMissing Kind = iota + 1
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Error is returned by the Validate methods. Message is safe to show to the
// user. For KindMissing it names the fields; for KindInvalid it does not, and
// Fields is only meant for logs.
type Error struct {
	Kind    Kind
	Fields  []string
	Message string
	Cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Cause }

// Generic schema failure messages. They never say which field was wrong.
const (
	SignupInvalidMessage = "Invalid name/email/password combination."
	LoginInvalidMessage  = "Invalid email/password combination."
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SignupForm is the body of POST /signupSubmit.
type SignupForm struct {
	Name     string `validate:"required,alphanum,max=20"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,max=20"`
}

// LoginForm is the body of POST /loginSubmit.
type LoginForm struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,max=20"`
}

// SignupFromRequest reads the name, email and password form fields.
func SignupFromRequest(r *http.Request) SignupForm {
	return SignupForm{
		Name:     r.PostFormValue("name"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
}

// LoginFromRequest reads the email and password form fields.
func LoginFromRequest(r *http.Request) LoginForm {
	return LoginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
}

func (f SignupForm) Validate() error {
	if err := missing(
		field{"Name", f.Name},
		field{"Email", f.Email},
		field{"Password", f.Password},
	); err != nil {
		return err
	}
	return check(f, SignupInvalidMessage)
}

func (f LoginForm) Validate() error {
	if err := missing(
		field{"Email", f.Email},
		field{"Password", f.Password},
	); err != nil {
		return err
	}
	return check(f, LoginInvalidMessage)
}

type field struct {
	label string
	value string
}

func missing(fields ...field) error {
	var names []string
	for _, f := range fields {
		if f.value == "" {
			names = append(names, f.label)
		}
	}
	if len(names) == 0 {
		return nil
	}
	verb := "is"
	if len(names) > 1 {
		verb = "are"
	}
	return &Error{
		Kind:    KindMissing,
		Fields:  names,
		Message: fmt.Sprintf("%s %s required.", strings.Join(names, ", "), verb),
	}
}

func check(form any, message string) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	verr := &Error{Kind: KindInvalid, Message: message, Cause: err}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			verr.Fields = append(verr.Fields, fe.Field()+":"+fe.Tag())
		}
	}
	return verr
}
