package config

import (
	"os"
	"strings"
)

// StrictRunImmutability enables guardrails on production runs:
// ledger-affecting fields (quantity, ingredients, mold) cannot be edited after
// the Start transition has committed; the run must be deleted and recreated.
//
// Set via env:
// - STRICT_RUN_IMMUTABLE=true
func StrictRunImmutability() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_RUN_IMMUTABLE")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// DisableOutboxDispatcher turns off in-process event publishing. Useful when a
// dedicated dispatcher deployment owns the outbox table.
//
// Set via env:
// - DISABLE_OUTBOX_DISPATCHER=true
func DisableOutboxDispatcher() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("DISABLE_OUTBOX_DISPATCHER")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
