package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"kila/internal"
	"kila/internal/config"
	"kila/internal/dian"
	"kila/internal/remote"
	"kila/internal/storage"
)

// ValidationService runs the full invoice pipeline: parse, validate locally,
// validate remotely, merge with local priority, persist.
type ValidationService struct {
	db        *storage.DB
	cfg       config.Config
	remote    *remote.Client
	validator *dian.Validator
	log       zerolog.Logger
}

func NewValidationService(db *storage.DB, cfg config.Config, rc *remote.Client, log zerolog.Logger) *ValidationService {
	return &ValidationService{
		db:        db,
		cfg:       cfg,
		remote:    rc,
		validator: dian.NewValidator(cfg.Rules),
		log:       log.With().Str("component", "pipeline").Logger(),
	}
}

type ValidateInput struct {
	Raw      json.RawMessage
	Filename string
	UserID   *int64
}

// ErrBadDocument marks input that is not a JSON object. Structural problems
// surface as an error, never as a validation finding.
type ErrBadDocument struct {
	Reason string
}

func (e *ErrBadDocument) Error() string {
	return "documento inválido: " + e.Reason
}

func (s *ValidationService) Validate(ctx context.Context, input ValidateInput) (internal.CombinedResult, error) {
	start := time.Now()

	var doc dian.Document
	if err := json.Unmarshal(input.Raw, &doc); err != nil {
		return internal.CombinedResult{}, &ErrBadDocument{Reason: "el contenido no es un objeto JSON"}
	}
	if len(doc) == 0 {
		return internal.CombinedResult{}, &ErrBadDocument{Reason: "el documento está vacío"}
	}

	var (
		local  internal.ValidationResult
		remRes internal.RemoteResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		local = s.validator.Validate(doc)
		return nil
	})
	g.Go(func() error {
		if !s.remote.Enabled() {
			remRes = internal.RemoteResult{Success: false}
			return nil
		}
		res, err := s.remote.Validate(gctx, input.Raw)
		if err != nil {
			s.log.Warn().Err(err).Msg("remote validation failed, using local result only")
		}
		remRes = res
		return nil
	})
	_ = g.Wait()

	var remotePtr *internal.RemoteResult
	if s.remote.Enabled() {
		remotePtr = &remRes
	}

	combined := dian.Merge(local, remotePtr)
	if combined.ValidationID == "" {
		combined.ValidationID = uuid.NewString()
	}
	combined.InvoiceData = input.Raw

	if err := s.persist(combined, doc, input); err != nil {
		return combined, fmt.Errorf("guardar validación: %w", err)
	}

	s.log.Info().
		Str("validationId", combined.ValidationID).
		Str("status", string(combined.Status)).
		Int("errors", len(combined.Errors)).
		Int("warnings", len(combined.Warnings)).
		Dur("took", time.Since(start)).
		Msg("validation completed")

	return combined, nil
}

func (s *ValidationService) persist(combined internal.CombinedResult, doc dian.Document, input ValidateInput) error {
	conflicts := 0
	if combined.ConflictResolution != nil {
		conflicts = combined.ConflictResolution.ConflictsFound
	}

	row := internal.ValidationRow{
		ValidationID:  combined.ValidationID,
		InvoiceNumber: dian.InvoiceNumber(doc),
		Filename:      input.Filename,
		UserID:        input.UserID,
		Passed:        combined.Status == internal.StatusApproved,
		Status:        string(combined.Status),
		Source:        string(combined.Source),
		ConflictCount: conflicts,
		Errors:        combined.Errors,
		Warnings:      combined.Warnings,
		InvoiceJSON:   string(input.Raw),
	}

	if _, err := s.db.InsertValidation(row); err != nil {
		return err
	}
	return s.db.PruneValidations(input.UserID, s.cfg.HistoryLimit)
}
