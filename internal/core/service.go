package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/inventory/internal/logging"
)

// ErrImportNotFound is returned for unknown or expired import IDs.
var ErrImportNotFound = errors.New("import not found")

// ErrImportRunning is returned by GetResult while the import is in progress.
var ErrImportRunning = errors.New("import still running")

// ErrUnknownMode is returned when a template is requested for a mode that
// is not registered.
var ErrUnknownMode = errors.New("unknown import mode")

// DefaultResultTTL is how long a finished session stays in memory.
const DefaultResultTTL = 30 * time.Minute

// ResultArchive keeps finished results after their session is evicted.
type ResultArchive interface {
	Save(ctx context.Context, result *ImportResult) error
	Load(ctx context.Context, importID string) (*ImportResult, error)
}

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	MaxConcurrent int
	MaxWait       time.Duration
	ResultTTL     time.Duration
	DecodeBuffer  int
	Archive       ResultArchive
}

// Service runs imports against a Store and tracks their sessions.
type Service struct {
	store        Store
	limiter      *ImportLimiter
	archive      ResultArchive
	resultTTL    time.Duration
	decodeBuffer int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService creates a Service over store.
func NewService(store Store, opts Options) *Service {
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = DefaultResultTTL
	}
	if opts.DecodeBuffer <= 0 {
		opts.DecodeBuffer = DefaultDecodeBuffer
	}
	return &Service{
		store:        store,
		limiter:      NewImportLimiter(opts.MaxConcurrent, opts.MaxWait),
		archive:      opts.Archive,
		resultTTL:    opts.ResultTTL,
		decodeBuffer: opts.DecodeBuffer,
		sessions:     make(map[string]*Session),
	}
}

// Modes returns the registered import formats.
func (s *Service) Modes() []ModeInfo {
	defs := All()
	infos := make([]ModeInfo, len(defs))
	for i, def := range defs {
		infos[i] = def.Info
	}
	return infos
}

// ListStocks returns the known stock locations.
func (s *Service) ListStocks(ctx context.Context) ([]StockLocation, error) {
	return s.store.ListStocks(ctx)
}

// Run imports req and blocks until the session terminates. The returned
// error is only set when the import could not start; row and structural
// failures are reported in the result.
func (s *Service) Run(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	sess := s.newSession(req)
	s.execute(context.WithoutCancel(ctx), sess, req)
	return sess.Result(), nil
}

// StartImport begins an asynchronous import and returns its ID immediately.
// Use SubscribeProgress to follow it.
//
// Returns ErrTooManyImports if no import slot frees up within the wait
// period. Once started, an import runs to completion.
func (s *Service) StartImport(ctx context.Context, req ImportRequest) (string, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	sess := s.newSession(req)
	runCtx := context.WithoutCancel(ctx)

	// Process in background with panic recovery to ensure limiter release
	go func() {
		defer s.limiter.Release()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in import",
					"import_id", sess.ID(),
					"file", req.FileName,
					"panic", r,
				)
				sess.Abort(FormatUserError(&PanicError{Value: r}))
				s.finalize(runCtx, sess, slog.Default())
			}
		}()
		s.execute(runCtx, sess, req)
	}()

	return sess.ID(), nil
}

func (s *Service) newSession(req ImportRequest) *Session {
	sess := NewSession(uuid.New().String(), req.FileName)
	if req.OnProgress != nil {
		sess.OnChange(req.OnProgress)
	}

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	return sess
}

// execute drives one session from raw bytes to a terminal state.
func (s *Service) execute(ctx context.Context, sess *Session, req ImportRequest) {
	log := logging.WithFields(ctx,
		"import_id", sess.ID(),
		"file", req.FileName,
	)
	log.Info("import started", "bytes", len(req.Data), "parent_sku", req.ParentSKU)

	defer s.finalize(ctx, sess, log)

	stocks, err := s.store.ListStocks(ctx)
	if err != nil {
		s.abort(sess, log, fmt.Errorf("list stocks: %w", err))
		return
	}

	layout, err := ResolveColumns(DecodeText(req.Data), stocks)
	if err != nil {
		s.abort(sess, log, err)
		return
	}

	choice, err := s.selectMode(ctx, layout, req.ParentSKU)
	if err != nil {
		s.abort(sess, log, err)
		return
	}
	mode := choice.mode
	log = log.With("mode", mode)
	if choice.whyNotSerial != nil {
		log.Debug("serial_number column ignored", "reason", choice.whyNotSerial.Message)
	}

	def, ok := Get(mode)
	if !ok {
		s.abort(sess, log, fmt.Errorf("unknown import mode: %s", mode))
		return
	}
	if err := requireColumns(layout, def, choice); err != nil {
		s.abort(sess, log, err)
		return
	}

	sess.Begin(mode, len(layout.Rows))
	log.Debug("columns resolved",
		"rows", len(layout.Rows),
		"stock_mode", layout.StockMode,
		"stock_columns", len(layout.StockColumns),
	)

	switch mode {
	case ModeSerial:
		s.runSerials(ctx, sess, log, layout, *choice.parent, stocks)
	default:
		s.runProducts(ctx, sess, log, layout)
	}

	sess.Finish()
}

// modeChoice is the routing decision for one file.
type modeChoice struct {
	mode   ImportMode
	parent *Product

	// whyNotSerial is set when the header has serial_number but serial mode
	// could not be used.
	whyNotSerial *StructuralError
}

// selectMode picks serial mode only when the header has serial_number and
// the request names a serial-hosting parent. Every other file goes to the
// product importer.
func (s *Service) selectMode(ctx context.Context, layout *Layout, parentSKU string) (modeChoice, error) {
	product := modeChoice{mode: ModeProduct}
	if !layout.Has(serialHeader) {
		return product, nil
	}

	parentSKU = strings.ToUpper(strings.TrimSpace(parentSKU))
	if parentSKU == "" {
		product.whyNotSerial = notSerialParent(nil)
		return product, nil
	}

	parent, err := s.store.FindProductBySKU(ctx, parentSKU)
	if errors.Is(err, ErrProductNotFound) {
		product.whyNotSerial = &StructuralError{
			Kind:    KindNotSerialParent,
			Message: fmt.Sprintf("Produit parent %s introuvable", parentSKU),
		}
		return product, nil
	}
	if err != nil {
		return modeChoice{}, fmt.Errorf("find parent: %w", err)
	}

	if err := checkSerialParent(ctx, s.store, parent); err != nil {
		var se *StructuralError
		if !errors.As(err, &se) {
			return modeChoice{}, err
		}
		product.whyNotSerial = se
		return product, nil
	}
	return modeChoice{mode: ModeSerial, parent: parent}, nil
}

// requireColumns checks the header against the chosen mode. A serial file
// that fell back to product mode is reported with the reason serial mode
// was refused rather than the list of missing product columns.
func requireColumns(layout *Layout, def ModeDefinition, choice modeChoice) error {
	err := layout.Require(def.Info.Required)
	if err != nil && choice.whyNotSerial != nil && layout.Require(SerialColumns) == nil {
		return choice.whyNotSerial
	}
	return err
}

func (s *Service) runProducts(ctx context.Context, sess *Session, log *slog.Logger, layout *Layout) {
	ri := &rowImporter{store: s.store, layout: layout, log: log}

	runPipeline(ctx, layout.Rows, s.decodeBuffer, ri.plan,
		func(ctx context.Context, row DataRow, p plannedProduct, err error) {
			if err == nil {
				err = ri.apply(ctx, p)
			}
			if err != nil {
				rowFailed(sess, log, &RowError{Line: row.Line, SKU: PeekSKU(layout, row), Err: err}, true)
				return
			}
			sess.Advance()
		})
}

func (s *Service) runSerials(ctx context.Context, sess *Session, log *slog.Logger, layout *Layout, parent Product, stocks []StockLocation) {
	si := &serialImporter{store: s.store, parent: parent, stocks: stocks, log: log}

	decode := func(row DataRow) (SerialInput, error) {
		return DecodeSerialRow(layout, row)
	}

	runPipeline(ctx, layout.Rows, s.decodeBuffer, decode,
		func(ctx context.Context, row DataRow, in SerialInput, err error) {
			var sku string
			if err == nil {
				sku, err = si.apply(ctx, in)
			} else if serial := layout.Cell(row, serialHeader); serial != "" {
				sku = ChildSKU(parent.SKU, serial)
			}
			if err != nil {
				// Serial progress counts created children only.
				rowFailed(sess, log, &RowError{Line: row.Line, SKU: sku, Err: err}, false)
				return
			}
			sess.Advance()
		})
}

func rowFailed(sess *Session, log *slog.Logger, re *RowError, advance bool) {
	log.Warn("row failed", "line", re.Line, "sku", re.SKU, "error", re.Err)
	sess.Fail(re.ImportError(), advance)
}

// abort ends sess on a file-level failure. Structural errors carry their
// own message; anything else goes through the error catalogue.
func (s *Service) abort(sess *Session, log *slog.Logger, err error) {
	msg := FormatUserError(err)
	var se *StructuralError
	if errors.As(err, &se) {
		msg = se.Message
	}
	log.Error("import aborted", "error", err)
	sess.Abort(msg)
}

// finalize archives the result and schedules the session's eviction.
func (s *Service) finalize(ctx context.Context, sess *Session, log *slog.Logger) {
	result := sess.Result()
	if result == nil {
		return
	}

	log.Info("import finished",
		"status", result.Status,
		"total", result.Total,
		"processed", result.Processed,
		"errors", len(result.Errors),
		"duration", result.Duration,
	)

	if s.archive != nil {
		if err := s.archive.Save(ctx, result); err != nil {
			log.Warn("archive result failed", "error", err)
		}
	}
	s.cleanup(sess.ID(), s.resultTTL)
}

// cleanup removes the session from tracking after a delay.
func (s *Service) cleanup(importID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.sessions, importID)
		s.mu.Unlock()
	})
}

func (s *Service) session(importID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[importID]
	return sess, ok
}

// SubscribeProgress returns a channel that receives progress updates.
// The channel is closed when the import terminates.
func (s *Service) SubscribeProgress(importID string) (<-chan ImportProgress, error) {
	sess, ok := s.session(importID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, importID)
	}
	return sess.Subscribe(), nil
}

// GetProgress returns the current progress without blocking.
func (s *Service) GetProgress(importID string) (ImportProgress, error) {
	sess, ok := s.session(importID)
	if !ok {
		return ImportProgress{}, fmt.Errorf("%w: %s", ErrImportNotFound, importID)
	}
	return sess.Snapshot(), nil
}

// GetResult returns the result of a finished import, from memory or from
// the archive once the session has been evicted.
func (s *Service) GetResult(ctx context.Context, importID string) (*ImportResult, error) {
	if sess, ok := s.session(importID); ok {
		if result := sess.Result(); result != nil {
			return result, nil
		}
		return nil, ErrImportRunning
	}

	if s.archive == nil {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, importID)
	}
	result, err := s.archive.Load(ctx, importID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// WaitResult blocks until the import terminates or ctx is done.
func (s *Service) WaitResult(ctx context.Context, importID string) (*ImportResult, error) {
	sess, ok := s.session(importID)
	if !ok {
		return s.GetResult(ctx, importID)
	}
	select {
	case <-sess.Done():
		return sess.Result(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitForImports blocks until no import is running. Used on shutdown.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// LimiterStatus reports import slot usage.
func (s *Service) LimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// Template returns the CSV template for mode filled with current stock
// locations (and suppliers for serial imports).
func (s *Service) Template(ctx context.Context, mode ImportMode) (string, error) {
	stocks, suppliers, err := s.templateRefs(ctx, mode)
	if err != nil {
		return "", err
	}
	return GenerateTemplate(mode, stocks, suppliers)
}

// TemplateXLSX is Template rendered as an Excel workbook.
func (s *Service) TemplateXLSX(ctx context.Context, mode ImportMode) ([]byte, error) {
	stocks, suppliers, err := s.templateRefs(ctx, mode)
	if err != nil {
		return nil, err
	}
	return GenerateTemplateXLSX(mode, stocks, suppliers)
}

func (s *Service) templateRefs(ctx context.Context, mode ImportMode) ([]StockLocation, []string, error) {
	if _, ok := Get(mode); !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}

	stocks, err := s.store.ListStocks(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list stocks: %w", err)
	}

	var suppliers []string
	if mode == ModeSerial {
		suppliers, err = s.store.ListSuppliers(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("list suppliers: %w", err)
		}
	}
	return stocks, suppliers, nil
}
