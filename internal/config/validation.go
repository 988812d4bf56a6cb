package config

import (
	"fmt"
	"path"
	"strings"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// Validate checks the whole configuration and reports every problem found,
// or nil.
func (c Config) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(c.Name) == "" {
		errs.Add("name", "is required")
	}
	if c.Shutdown.Timeout < 0 {
		errs.Add("shutdown.timeout", "must not be negative", c.Shutdown.Timeout)
	}
	if c.Shutdown.PollInterval < 0 {
		errs.Add("shutdown.pollInterval", "must not be negative", c.Shutdown.PollInterval)
	}
	if c.Pool.Capacity < 0 {
		errs.Add("pool.capacity", "must not be negative", c.Pool.Capacity)
	}
	if c.Pool.MultiPoolCapacity < 0 {
		errs.Add("pool.multiPoolCapacity", "must not be negative", c.Pool.MultiPoolCapacity)
	}

	s := c.Supervising
	if s.InitialDelay < 0 {
		errs.Add("supervising.initialDelay", "must not be negative", s.InitialDelay)
	}
	validateBackOff(&errs, "supervising.backOff", s.BackOff)
	for id, b := range s.RouteBackOffs {
		validateBackOff(&errs, "supervising.routeBackOffs."+id, b)
	}
	validatePatterns(&errs, "supervising.includeRoutes", s.IncludeRoutes)
	validatePatterns(&errs, "supervising.excludeRoutes", s.ExcludeRoutes)

	ids := make(map[string]int, len(c.Routes))
	orders := make(map[int]string)
	for i, r := range c.Routes {
		field := fmt.Sprintf("routes[%d]", i)
		if strings.TrimSpace(r.ID) == "" {
			errs.Add(field+".id", "is required")
		} else if prev, dup := ids[r.ID]; dup {
			errs.Add(field+".id", fmt.Sprintf("duplicates routes[%d]", prev), r.ID)
		} else {
			ids[r.ID] = i
		}
		if !strings.Contains(r.From, ":") {
			errs.Add(field+".from", "must be an endpoint uri", r.From)
		}
		for j, to := range r.To {
			if !strings.Contains(to, ":") {
				errs.Add(fmt.Sprintf("%s.to[%d]", field, j), "must be an endpoint uri", to)
			}
		}
		if r.StartupOrder < 0 {
			errs.Add(field+".startupOrder", "must not be negative", r.StartupOrder)
		} else if r.StartupOrder > 0 {
			if other, clash := orders[r.StartupOrder]; clash {
				errs.Add(field+".startupOrder", "is already used by route "+other, r.StartupOrder)
			} else {
				orders[r.StartupOrder] = r.ID
			}
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateBackOff(errs *ValidationErrors, field string, b BackOffConfig) {
	if b.Delay < 0 {
		errs.Add(field+".delay", "must not be negative", b.Delay)
	}
	if b.MaxDelay < 0 {
		errs.Add(field+".maxDelay", "must not be negative", b.MaxDelay)
	}
	if b.MaxElapsedTime < 0 {
		errs.Add(field+".maxElapsedTime", "must not be negative", b.MaxElapsedTime)
	}
	if b.MaxAttempts < 0 {
		errs.Add(field+".maxAttempts", "must not be negative", b.MaxAttempts)
	}
	if b.Multiplier != 0 && b.Multiplier < 1 {
		errs.Add(field+".multiplier", "must be at least 1", b.Multiplier)
	}
}

func validatePatterns(errs *ValidationErrors, field string, patterns []string) {
	for i, p := range patterns {
		if _, err := path.Match(p, ""); err != nil {
			errs.Add(fmt.Sprintf("%s[%d]", field, i), "is not a valid pattern", p)
		}
	}
}
