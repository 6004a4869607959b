// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.


package config

// ValidationLevel distinguishes a hard failure from an advisory note.
type ValidationLevel string

const (
	ValidationError   ValidationLevel = "error"
	ValidationWarning ValidationLevel = "warning"
)

// ValidationIssue is a single finding from ValidateConfiguration.
type ValidationIssue struct {
	Field   string
	Message string
	Level   ValidationLevel
}

// ValidateConfiguration checks a loaded Config for problems. Only
// ValidationError-level issues cause Load to fail; warnings are
// returned for the caller to log.
func ValidateConfiguration(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg == nil {
		return []ValidationIssue{{Field: "config", Message: "configuration is nil", Level: ValidationError}}
	}

	if cfg.Signaling == nil || cfg.Signaling.ServerURL == "" {
		issues = append(issues, ValidationIssue{
			Field:   "signaling.server_url",
			Message: "signaling server URL is required to connect",
			Level:   ValidationWarning,
		})
	}

	if cfg.Rendezvous != nil && cfg.Rendezvous.ResendDelay < 0 {
		issues = append(issues, ValidationIssue{
			Field:   "rendezvous.resend_delay",
			Message: "resend delay cannot be negative",
			Level:   ValidationError,
		})
	}

	if cfg.Link != nil && cfg.Link.SessionTTL <= 0 {
		issues = append(issues, ValidationIssue{
			Field:   "link.session_ttl",
			Message: "link session TTL must be positive",
			Level:   ValidationError,
		})
	}

	if cfg.Logging != nil {
		switch cfg.Logging.Level {
		case "debug", "info", "warn", "error", "":
		default:
			issues = append(issues, ValidationIssue{
				Field:   "logging.level",
				Message: "unrecognized log level: " + cfg.Logging.Level,
				Level:   ValidationWarning,
			})
		}
	}

	return issues
}
