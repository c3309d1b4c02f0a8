package core

import (
	"errors"
	"fmt"
	"strings"
)

// StructuralKind classifies a file-level failure. Each kind's text is also
// the technical pattern matched by the error catalogue.
type StructuralKind string

const (
	KindEmptyFile          StructuralKind = "empty file"
	KindNoDataRows         StructuralKind = "no data rows"
	KindMissingColumn      StructuralKind = "missing required column"
	KindUnknownStockColumn StructuralKind = "unknown stock column"
	KindNotSerialParent    StructuralKind = "not a serial-hosting parent"
	KindInvalidCSV         StructuralKind = "invalid csv"
)

// StructuralError rejects a whole file before any row is processed.
// Message is the end-user text.
type StructuralError struct {
	Kind    StructuralKind
	Message string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newUnknownStockColumnsError(unknown []string, stocks []StockLocation) *StructuralError {
	valid := make([]string, 0, len(stocks))
	for _, s := range stocks {
		valid = append(valid, s.Name)
	}
	validList := "aucun"
	if len(valid) > 0 {
		validList = strings.Join(valid, ", ")
	}
	return &StructuralError{
		Kind: KindUnknownStockColumn,
		Message: fmt.Sprintf("Colonnes de stock inconnues : %s. Stocks valides : %s",
			strings.Join(unknown, ", "), validList),
	}
}

// ValidationError is a business-rule failure on a single value. It carries
// no position; the row importer attaches the line and SKU.
type ValidationError struct {
	Field   string // Column name, when the failure is tied to one
	Message string // End-user text
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// PersistenceError is a store call that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// PanicError is a recovered panic confined to one row. Users only see the
// generic message; Value goes to the logs.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return msgUnexpected
}

// RowError is a failure confined to one data row. The import continues with
// the next row.
type RowError struct {
	Line int
	SKU  string
	Err  error
}

func (e *RowError) Error() string {
	return formatRowMessage(e.Line, e.SKU, rowErrorText(e.Err))
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// ImportError converts e into the (line, message) pair kept by the session.
func (e *RowError) ImportError() ImportError {
	return ImportError{Line: e.Line, Message: e.Error()}
}

func formatRowMessage(line int, sku, text string) string {
	if sku == "" {
		return fmt.Sprintf("Ligne %d : %s", line, text)
	}
	return fmt.Sprintf("Ligne %d (SKU %s) : %s", line, sku, text)
}

// rowErrorText picks the end-user text for the cause of a row failure.
// Persistence failures go through the error catalogue so driver details
// stay in the logs.
func rowErrorText(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return fmt.Sprintf("%s (%s)", persistOpLabel(pe.Op), FormatUserError(pe.Err))
	}
	if err == nil {
		return msgUnexpected
	}
	return err.Error()
}

func persistOpLabel(op string) string {
	switch op {
	case opCategory:
		return "échec de création de la catégorie"
	case opFindProduct:
		return "échec de lecture du produit"
	case opUpsertProduct:
		return "échec d'enregistrement du produit"
	case opAllocation:
		return "échec d'enregistrement du stock"
	default:
		return "échec d'enregistrement"
	}
}

const (
	opCategory      = "get or create category"
	opFindProduct   = "find product"
	opUpsertProduct = "upsert product"
	opAllocation    = "insert stock allocation"
)

// User-facing row messages.
const (
	msgUnexpected       = "erreur inattendue"
	msgChildExists      = "SKU enfant déjà existant"
	msgParentMismatch   = "le SKU parent %q ne correspond pas au produit %q"
	msgUnknownStockName = "stock inconnu « %s »"
	msgMissingField     = "champ obligatoire manquant « %s »"
	msgInvalidNumber    = "nombre invalide pour « %s » : %q"
	msgInvalidChoice    = "valeur invalide pour « %s » : %q (valeurs possibles : %s)"
	msgChooseOne        = "%s : renseignez soit le prix, soit la marge, pas les deux"
	msgOneRequired      = "%s : un prix ou une marge est obligatoire"
	msgPurchaseRequired = "%s : le prix d'achat doit être supérieur à 0 pour calculer la marge"
	msgStockMismatch    = "stock global (%d) différent de la somme des stocks par emplacement (%d) pour le SKU %s"
)
