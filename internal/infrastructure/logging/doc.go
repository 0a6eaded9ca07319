// Package logging is the service's slog setup.
//
// Every entry carries service and version; subsystems add a component
// field through Logger.Component. Besides the slog levels there is
// CRITICAL, used for device reports the local model cannot account for.
//
//	logging:
//	  level: "info"      # debug, info, warn, error, critical
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log secrets, tokens or passwords.
package logging
