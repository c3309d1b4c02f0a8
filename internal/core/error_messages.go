// Package core provides the business logic for bulk product imports.
//
// # Error Codes Reference
//
// This file defines user-facing error messages with codes for support
// reference. Messages are in French, the language of the back office.
//
// Error codes are grouped by category:
//
// # Import Structure Errors (IMP001-IMP099)
//
//	IMP001 - Unknown stock column: a stock_<name> header matches no location
//	         Patterns: "unknown stock column"
//
//	IMP002 - Missing column: a required header is absent
//	         Patterns: "missing required column"
//
//	IMP003 - Empty file: no header or no data rows
//	         Patterns: "empty file", "no data rows"
//
//	IMP004 - Serial mode unavailable: parent cannot host serial numbers
//	         Patterns: "not a serial-hosting parent"
//
//	IMP005 - Unknown mode: template requested for an unregistered mode
//	         Patterns: "unknown import mode"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key
//	        Patterns: "duplicate key", "unique constraint", "violates unique"
//
//	DB002 - Foreign key
//	        Patterns: "foreign key constraint", "violates foreign key"
//
//	DB003 - Connection refused
//	        Patterns: "connection refused"
//
//	DB004 - Connection reset
//	        Patterns: "connection reset"
//
//	DB005 - Timeout
//	        Patterns: "timeout"
//
//	DB006 - Deadlock
//	        Patterns: "deadlock"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Invalid CSV: the header line is not a valid record
//	FILE003 - No file
//	FILE004 - Unsupported template format
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - System busy: another import is running
//	UPL002 - Import not found
//	UPL003 - Request cancelled
//	UPL004 - Request timeout
//	UPL005 - Import still running: result requested too early
//	UPL006 - Rate limited: too many requests from one client
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Support staff should check
// application logs for the original technical error.
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns come first.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Import Structure Errors (IMP001-IMP005)
	// =========================================================================
	{
		pattern: "unknown stock column",
		msg: UserMessage{
			Message: "Colonne de stock inconnue",
			Action:  "Utilisez uniquement les noms de stock listés dans le modèle",
			Code:    "IMP001",
		},
	},
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "Colonne obligatoire absente du fichier",
			Action:  "Repartez du modèle CSV téléchargeable",
			Code:    "IMP002",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "Le fichier est vide",
			Action:  "Ajoutez une ligne d'en-tête et au moins une ligne de données",
			Code:    "IMP003",
		},
	},
	{
		pattern: "no data rows",
		msg: UserMessage{
			Message: "Le fichier ne contient aucune ligne de données",
			Action:  "Ajoutez au moins une ligne sous l'en-tête",
			Code:    "IMP003",
		},
	},
	{
		pattern: "not a serial-hosting parent",
		msg: UserMessage{
			Message: "Ce produit ne peut pas recevoir de numéros de série",
			Action:  "Lancez l'import depuis un produit parent avec variantes",
			Code:    "IMP004",
		},
	},
	{
		pattern: "unknown import mode",
		msg: UserMessage{
			Message: "Type d'import inconnu",
			Action:  "Choisissez « product » ou « serial »",
			Code:    "IMP005",
		},
	},

	// =========================================================================
	// Database Errors (DB001-DB006)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "Un enregistrement identique existe déjà",
			Action:  "Vérifiez les doublons dans votre fichier",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "Cette valeur doit être unique",
			Action:  "Vérifiez les doublons dans votre fichier",
			Code:    "DB001",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "Cette valeur doit être unique",
			Action:  "Vérifiez les doublons dans votre fichier",
			Code:    "DB001",
		},
	},
	{
		pattern: "foreign key constraint",
		msg: UserMessage{
			Message: "Référence introuvable",
			Action:  "Vérifiez que la catégorie et le stock existent",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Référence introuvable",
			Action:  "Vérifiez que la catégorie et le stock existent",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Base de données injoignable",
			Action:  "Réessayez dans quelques instants",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Connexion à la base interrompue",
			Action:  "Réessayez",
			Code:    "DB004",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Délai dépassé",
			Action:  "Réessayez plus tard",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Base de données occupée",
			Action:  "Réessayez",
			Code:    "DB006",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE004)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "Fichier trop volumineux",
			Action:  "Découpez le fichier en plusieurs imports",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "Fichier CSV invalide",
			Action:  "Vérifiez les guillemets de la ligne d'en-tête",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "Aucun fichier sélectionné",
			Action:  "Choisissez un fichier CSV",
			Code:    "FILE003",
		},
	},
	{
		pattern: "unsupported template format",
		msg: UserMessage{
			Message: "Format de modèle non pris en charge",
			Action:  "Choisissez csv ou xlsx",
			Code:    "FILE004",
		},
	},

	// =========================================================================
	// Upload Errors (UPL001-UPL006)
	// =========================================================================
	{
		pattern: "too many imports",
		msg: UserMessage{
			Message: "Un autre import est en cours",
			Action:  "Patientez puis relancez l'import",
			Code:    "UPL001",
		},
	},
	{
		pattern: "import not found",
		msg: UserMessage{
			Message: "Import introuvable",
			Action:  "L'import a peut-être expiré",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Requête annulée",
			Action:  "Réessayez",
			Code:    "UPL003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Délai de requête dépassé",
			Action:  "Réessayez avec un fichier plus petit",
			Code:    "UPL004",
		},
	},
	{
		pattern: "import still running",
		msg: UserMessage{
			Message: "Import en cours",
			Action:  "Le résultat sera disponible à la fin de l'import",
			Code:    "UPL005",
		},
	},
	{
		pattern: "rate limit exceeded",
		msg: UserMessage{
			Message: "Trop de requêtes",
			Action:  "Patientez une minute avant de réessayer",
			Code:    "UPL006",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "Une erreur inattendue est survenue",
	Action:  "Réessayez ou contactez le support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If no pattern matches, a generic fallback message with code ERR000 is
// returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// UserError wraps a technical error with a user-friendly message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps a technical error to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
