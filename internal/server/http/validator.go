package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"reflect"
	"strings"

	"questlog/internal/server/core"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

const validatedBodyKey = "validatedBody"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names in error details.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("mailbox", isMailbox)
	return v
}

// isMailbox accepts a bare RFC 5322 address such as user@localhost or
// user@bücher.example. Display names and angle brackets are rejected.
func isMailbox(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// route describes the body a POST endpoint accepts.
type route struct {
	newBody func() any
	// Error message when a required field is missing.
	missing string
}

var routes = map[string]route{
	"/api/register": {
		newBody: func() any { return &core.RegisterRequest{} },
		missing: "email and password required",
	},
	"/api/login": {
		newBody: func() any { return &core.LoginRequest{} },
		missing: "email and password required",
	},
	"/api/progress": {
		newBody: func() any { return &core.ProgressRequest{} },
		missing: "email and questId required",
	},
}

// validationMiddleware decodes and validates the body of known POST
// routes, leaving the result in Locals for the handler.
func validationMiddleware(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodPost {
		return c.Next()
	}

	// Routing ignores case, so the lookup must too.
	rt, ok := routes[strings.ToLower(strings.TrimSuffix(c.Path(), "/"))]
	if !ok {
		return c.Next() // No validation for unknown endpoints
	}

	body := rt.newBody()
	if raw := c.Body(); len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, body); err != nil {
			return badRequest("invalid request body", core.ErrInvalidRequest, err.Error())
		}
	}

	if err := validate.Struct(body); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			return err
		}
		message := "validation failed"
		for _, fe := range errs {
			if fe.Tag() == "required" {
				message = rt.missing
				break
			}
			if fe.Tag() == "mailbox" {
				message = "invalid email format"
			}
		}
		return badRequest(message, core.ErrInvalidRequest, describe(errs))
	}

	c.Locals(validatedBodyKey, body)
	return c.Next()
}

// validatedBody returns the request decoded by validationMiddleware.
func validatedBody[T any](c *fiber.Ctx) (*T, error) {
	body, ok := c.Locals(validatedBodyKey).(*T)
	if !ok {
		return nil, fmt.Errorf("no validated %T body in request context", *new(T))
	}
	return body, nil
}

func describe(errs validator.ValidationErrors) string {
	var details strings.Builder
	for _, err := range errs {
		if details.Len() > 0 {
			details.WriteString("; ")
		}
		switch err.Tag() {
		case "required":
			details.WriteString(fmt.Sprintf("%s is required", err.Field()))
		case "max":
			if err.Type().Kind() == reflect.String {
				details.WriteString(fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param()))
			} else {
				details.WriteString(fmt.Sprintf("%s must be at most %s", err.Field(), err.Param()))
			}
		case "mailbox":
			details.WriteString(fmt.Sprintf("%s must be a valid email address", err.Field()))
		default:
			details.WriteString(fmt.Sprintf("%s failed %s validation", err.Field(), err.Tag()))
		}
	}
	return details.String()
}
