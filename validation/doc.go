// Package validation runs struct-tag validation on configuration values.
//
//	type ProxyConfig struct {
//	    Address string `yaml:"address" validate:"required,hostname_port"`
//	}
//	if err := validation.Validate(cfg); err != nil { ... }
//
// Failures are reported as *Error with one FieldError per rejected field,
// named after the field's yaml tag.
package validation
