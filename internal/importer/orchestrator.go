package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"lambari-service/internal/models"
	"lambari-service/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Options tune one orchestrator. Zero values give a sequential commit with
// no throttling.
type Options struct {
	Workers        int
	RowsPerSecond  float64
	CallTimeout    time.Duration
	BrandColor     string
	BrandTextColor string
	CategoryType   string
	ActorID        string
	Observer       Observer
	Now            func() time.Time
}

// Orchestrator drives a single import run:
// Idle -> Parsed -> Validated -> Importing -> Completed.
// A run that fails or is cancelled ends in Failed and must be Reset.
type Orchestrator struct {
	parser     SpreadsheetParser
	validator  *Validator
	products   ProductRepository
	brands     BrandRepository
	categories CategoryRepository
	opts       Options

	mu          sync.Mutex
	state       models.ImportState
	validations []models.ValidationResult
}

func NewOrchestrator(parser SpreadsheetParser, validator *Validator, products ProductRepository, brands BrandRepository, categories CategoryRepository, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		parser:     parser,
		validator:  validator,
		products:   products,
		brands:     brands,
		categories: categories,
		opts:       opts,
		state:      models.ImportStateIdle,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() models.ImportState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Validations returns the results of the last Load or Restore.
func (o *Orchestrator) Validations() []models.ValidationResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.validations
}

// Reset returns the orchestrator to Idle, discarding any loaded rows.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = models.ImportStateIdle
	o.validations = nil
}

func (o *Orchestrator) transition(from, to models.ImportState) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != from {
		return fmt.Errorf("%w: expected %s, current %s", ErrInvalidState, from, o.state)
	}
	o.state = to
	return nil
}

func (o *Orchestrator) setState(state models.ImportState) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

// Load parses the upload and validates every row against a read-only
// catalog snapshot. Nothing is written.
func (o *Orchestrator) Load(ctx context.Context, r io.Reader, filename string) ([]models.ValidationResult, error) {
	if err := o.transition(models.ImportStateIdle, models.ImportStateParsed); err != nil {
		return nil, err
	}

	rows, err := o.parser.Parse(ctx, r, filename)
	if err != nil {
		o.setState(models.ImportStateFailed)
		return nil, err
	}

	snapshot, err := o.snapshot(ctx)
	if err != nil {
		o.setState(models.ImportStateFailed)
		return nil, err
	}

	validations := make([]models.ValidationResult, 0, len(rows))
	for _, row := range rows {
		result := o.validator.Validate(row, snapshot)
		o.opts.Observer.RowValidated(ctx, result)
		validations = append(validations, result)
	}

	o.mu.Lock()
	o.validations = validations
	o.state = models.ImportStateValidated
	o.mu.Unlock()
	return validations, nil
}

// Restore puts previously reviewed validations back in the Validated state
// so a later request can commit them.
func (o *Orchestrator) Restore(validations []models.ValidationResult) error {
	if err := o.transition(models.ImportStateIdle, models.ImportStateValidated); err != nil {
		return err
	}
	o.mu.Lock()
	o.validations = validations
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) snapshot(ctx context.Context) (*CatalogSnapshot, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()

	brands, err := o.brands.FindAll(callCtx)
	if err != nil {
		return nil, &InfrastructureError{Op: "load brands", Err: err}
	}
	categories, err := o.categories.FindAll(callCtx)
	if err != nil {
		return nil, &InfrastructureError{Op: "load categories", Err: err}
	}
	return NewCatalogSnapshot(brands, categories), nil
}

// halt records the first reason to stop issuing rows.
type halt struct {
	mu  sync.Mutex
	err error
}

func (h *halt) set(err error) {
	h.mu.Lock()
	if h.err == nil {
		h.err = err
	}
	h.mu.Unlock()
}

func (h *halt) get() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Commit persists every valid and warning row. Row-level failures are
// recorded and the batch continues. An infrastructure error or cancellation
// stops further rows; the partial report is returned with the error and
// rows already created stay created.
func (o *Orchestrator) Commit(ctx context.Context, validations []models.ValidationResult) (*models.BulkImportReport, error) {
	if err := o.transition(models.ImportStateValidated, models.ImportStateImporting); err != nil {
		return nil, err
	}

	start := o.opts.Now()
	importID := uuid.New().String()
	outcomes := make([]models.RowOutcome, len(validations))
	work := make([]int, 0, len(validations))
	for i, v := range validations {
		if v.Importable() {
			work = append(work, i)
			continue
		}
		outcomes[i] = models.RowOutcome{
			Row:    v.Row,
			Status: models.OutcomeSkipped,
			Code:   models.OutcomeCodeValidationError,
			Error:  "row has validation errors",
		}
		o.opts.Observer.RowCommitted(ctx, outcomes[i])
	}

	var stop halt
	var counts CreatedCounts

	resolver, err := NewEntityResolver(ctx, o.brands, o.categories, ResolverOptions{
		CallTimeout:    o.opts.CallTimeout,
		BrandColor:     o.opts.BrandColor,
		BrandTextColor: o.opts.BrandTextColor,
		CategoryType:   o.opts.CategoryType,
		Observer:       o.opts.Observer,
	})
	if err != nil {
		stop.set(err)
		o.skipRemaining(ctx, validations, outcomes, work, models.OutcomeCodeAborted)
	} else {
		o.run(ctx, resolver, importID, validations, outcomes, work, &stop)
		counts = CreatedCounts{Brands: resolver.CreatedBrands(), Categories: resolver.CreatedCategories()}
	}

	report := BuildReport(len(validations), validations, outcomes, counts, start)
	report.ID = importID
	report.DurationMs = o.opts.Now().Sub(start).Milliseconds()

	runErr := stop.get()
	if runErr != nil {
		o.setState(models.ImportStateFailed)
	} else {
		o.setState(models.ImportStateCompleted)
	}
	o.opts.Observer.ImportCompleted(ctx, report, runErr)
	return report, runErr
}

func (o *Orchestrator) run(ctx context.Context, resolver *EntityResolver, importID string, validations []models.ValidationResult, outcomes []models.RowOutcome, work []int, stop *halt) {
	var limiter *rate.Limiter
	if o.opts.RowsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(o.opts.RowsPerSecond), 1)
	}

	// A row is atomic once issued; cancellation is only observed between rows
	rowCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(o.opts.Workers)

	for pos, i := range work {
		if err := ctx.Err(); err != nil {
			stop.set(err)
		}
		if stop.get() == nil && limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				}
				stop.set(err)
			}
		}
		if err := stop.get(); err != nil {
			code := models.OutcomeCodeAborted
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				code = models.OutcomeCodeCancelled
			}
			_ = g.Wait()
			o.skipRemaining(ctx, validations, outcomes, work[pos:], code)
			return
		}

		i := i
		process := func() error {
			outcome, err := o.commitRow(rowCtx, resolver, importID, validations[i])
			outcomes[i] = outcome
			o.opts.Observer.RowCommitted(ctx, outcome)
			if err != nil {
				stop.set(err)
			}
			return nil
		}
		if o.opts.Workers == 1 {
			_ = process()
			continue
		}
		g.Go(process)
	}
	_ = g.Wait()
}

func (o *Orchestrator) skipRemaining(ctx context.Context, validations []models.ValidationResult, outcomes []models.RowOutcome, remaining []int, code string) {
	for _, i := range remaining {
		outcomes[i] = models.RowOutcome{
			Row:    validations[i].Row,
			Status: models.OutcomeSkipped,
			Code:   code,
			Error:  "import stopped before this row was processed",
		}
		o.opts.Observer.RowCommitted(ctx, outcomes[i])
	}
}

// commitRow links and creates one product. The returned error is non-nil
// only when the batch has to stop.
func (o *Orchestrator) commitRow(ctx context.Context, resolver *EntityResolver, importID string, v models.ValidationResult) (models.RowOutcome, error) {
	outcome := models.RowOutcome{Row: v.Row}

	brandName := v.Data.BrandName
	if brandName == "" {
		brandName = o.validator.DefaultBrand()
	}
	brandID, err := resolver.ResolveBrand(ctx, brandName)
	if err != nil {
		return rowFailure(outcome, models.OutcomeCodeBrandFailed, err)
	}
	outcome.BrandID = brandID

	var categoryID *string
	if v.Data.CategoryName != "" {
		id, err := resolver.ResolveCategory(ctx, v.Data.CategoryName)
		if err != nil {
			return rowFailure(outcome, models.OutcomeCodeCategoryFailed, err)
		}
		outcome.CategoryID = id
		categoryID = &id
	}

	product := buildProduct(v.Data, brandID, categoryID, importID, o.opts.ActorID)

	callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	created, err := o.products.Create(callCtx, product)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrUnavailable) {
			err = &InfrastructureError{Op: "create product", Err: err}
		} else {
			err = &PersistenceError{Row: v.Row, Err: err}
		}
		return rowFailure(outcome, models.OutcomeCodeCreateFailed, err)
	}

	outcome.Status = models.OutcomeCreated
	outcome.ProductID = created.ID.String()
	return outcome, nil
}

// rowFailure records a failed row and passes through errors that must stop
// the batch.
func rowFailure(outcome models.RowOutcome, code string, err error) (models.RowOutcome, error) {
	outcome.Status = models.OutcomeFailed
	outcome.Code = code
	outcome.Error = err.Error()

	var infra *InfrastructureError
	switch {
	case errors.As(err, &infra):
		return outcome, err
	case errors.Is(err, context.DeadlineExceeded):
		outcome.Code = models.OutcomeCodeTimeout
	case errors.Is(err, repository.ErrDuplicate):
		outcome.Code = models.OutcomeCodeDuplicate
	}
	return outcome, nil
}

func buildProduct(d models.ProductDraft, brandID string, categoryID *string, importID, actorID string) *models.Product {
	stock := make(models.StockMap, len(d.Stock))
	for size, qty := range d.Stock {
		stock[size] = qty
	}
	images := make(models.StringList, len(d.Images))
	copy(images, d.Images)

	product := &models.Product{
		Name:       d.Name,
		BrandID:    brandID,
		CategoryID: categoryID,
		Price:      d.Price,
		CostPrice:  d.CostPrice,
		Stock:      stock,
		Images:     images,
		Active:     d.Active,
		ImportID:   &importID,
	}
	if d.Description != "" {
		description := d.Description
		product.Description = &description
	}
	if actorID != "" {
		actor := actorID
		product.CreatedByID = &actor
	}
	return product
}
