package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/XiaoConstantine/promptforge/pkg/errors"
)

// Validate checks the configuration and reports every violation in a single
// human-readable error.
func (c *Config) Validate() error {
	validate := validator.New()

	var messages []string
	if err := validate.Struct(c); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			for _, e := range fieldErrors {
				messages = append(messages, validationMessage(e))
			}
		} else {
			return errors.Wrap(err, errors.ValidationFailed, "configuration validation failed")
		}
	}
	messages = append(messages, c.customRules()...)

	if len(messages) > 0 {
		return errors.New(errors.ValidationFailed,
			"invalid configuration: "+strings.Join(messages, "; "))
	}
	return nil
}

// customRules covers checks the struct tags cannot express.
func (c *Config) customRules() []string {
	var messages []string
	for name, pc := range c.LLM.Providers {
		if _, ok := providerEnvVars[name]; !ok {
			messages = append(messages,
				fmt.Sprintf("providers key %q is not a supported provider", name))
		}
		if pc.BaseURL != "" && name != "openai" {
			messages = append(messages,
				fmt.Sprintf("providers.%s.base_url is only supported for the openai provider", name))
		}
	}
	if level := c.Logging.Level; level != "" {
		switch level {
		case "debug", "info", "warn", "error", "fatal":
		default:
			messages = append(messages,
				fmt.Sprintf("log level %q must be one of: debug info warn error fatal", level))
		}
	}
	// Map iteration order is random; sort so repeated runs report violations
	// identically.
	sort.Strings(messages)
	return messages
}

// validationMessage returns a human-readable message for a field error.
func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", e.Field(), e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", e.Field())
	default:
		return fmt.Sprintf("%s failed validation", e.Field())
	}
}
