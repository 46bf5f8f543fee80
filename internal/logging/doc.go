// Package logging builds the slog logger shared by the authcore binaries: JSON or text
// output, a parsed level, and service/version attributes on every record.
package logging
