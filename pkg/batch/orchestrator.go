package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pseudomuto/dbchores/pkg/connection"
	"github.com/pseudomuto/dbchores/pkg/engine"
	"github.com/pseudomuto/dbchores/pkg/facts"
	"github.com/pseudomuto/dbchores/pkg/ledger"
	"github.com/pseudomuto/dbchores/pkg/metrics"
	"github.com/pseudomuto/dbchores/pkg/params"
	"github.com/pseudomuto/dbchores/pkg/source"
	"github.com/pseudomuto/dbchores/pkg/sqltext"
)

const (
	StateInit       State = "Init"
	StateFactPhase  State = "FactPhase"
	StateAdminPhase State = "AdminPhase"
	StateDone       State = "Done"
	StateFailed     State = "Failed"

	// StatusExecuted indicates the query was sent to its engine.
	StatusExecuted ItemStatus = "executed"

	// StatusSkipped indicates the query is already in the history.
	StatusSkipped ItemStatus = "skipped"

	// StatusSkippedCheck indicates a mutating query that check mode held back.
	StatusSkippedCheck ItemStatus = "skipped-check"

	// StatusFailed indicates the query failed.
	StatusFailed ItemStatus = "failed"
)

var allStates = []string{
	string(StateInit),
	string(StateFactPhase),
	string(StateAdminPhase),
	string(StateDone),
	string(StateFailed),
}

type (
	// State of a batch run.
	State string

	// ItemStatus is the outcome of one query.
	ItemStatus string

	// Config holds the collaborators and options of an Orchestrator.
	Config struct {
		// Resolver produces connection contexts. Required.
		Resolver *connection.Resolver

		// Registry holds the engine drivers. Required.
		Registry *engine.Registry

		// Loader reads query sources. Defaults to a Loader rooted at the
		// working directory.
		Loader *source.Loader

		// Ledger is the run history. Defaults to an in-memory ledger.
		Ledger ledger.Ledger

		// Facts seeds the fact store. Defaults to an empty store.
		Facts *facts.Store

		// Check enables dry-run mode. Nothing is recorded in the ledger.
		Check bool

		// ContinueOnError keeps going after a failed query. The batch still
		// ends in StateFailed.
		ContinueOnError bool

		// Timeout applies to queries without their own or their group's
		// timeout. Zero means no limit.
		Timeout time.Duration

		// Vars are exposed to templates as .vars.
		Vars map[string]any

		Logger  *slog.Logger
		Metrics *metrics.Recorder
	}

	// Orchestrator runs a batch: every fact group, then every admin group,
	// each query in order. An Orchestrator runs a single batch; its fact
	// store is frozen afterwards.
	//
	// Example usage:
	//
	//	o := batch.New(batch.Config{
	//		Resolver: resolver,
	//		Registry: registry,
	//		Ledger:   history,
	//	})
	//
	//	report, err := o.Run(ctx, spec)
	//	if err != nil {
	//		log.Fatal(err)
	//	}
	//
	//	fmt.Printf("%d executed, %d skipped\n", report.Executed, report.Skipped)
	Orchestrator struct {
		resolver   *connection.Resolver
		dispatcher *engine.Dispatcher
		loader     *source.Loader
		ledger     ledger.Ledger
		store      *facts.Store
		config     Config
		base       *slog.Logger
		logger     *slog.Logger
		state      State
	}

	// ItemResult describes what happened to one query (or one statement of
	// a split query).
	ItemResult struct {
		Phase    Phase
		Group    string
		Name     string
		Engine   string
		Identity string
		Status   ItemStatus
		Changed  bool
		Rows     int
		Duration time.Duration
		Err      error
	}

	// Report summarizes a run.
	Report struct {
		RunID    string
		State    State
		Check    bool
		Executed int
		Skipped  int
		Failed   int

		// Failure is the first error, when State is StateFailed.
		Failure *ItemError
		Results []*ItemResult
		Started time.Time
		Elapsed time.Duration
	}

	// ItemError wraps the cause of a failure with its location in the batch.
	// Item is -1 for failures that concern a whole group.
	ItemError struct {
		Phase    Phase
		Group    int
		Item     int
		Engine   string
		Identity string
		Err      error
	}

	plan struct {
		phase    Phase
		groups   []QueryGroup
		contexts [][]*connection.Context
	}
)

func (e *ItemError) Error() string {
	if e.Item < 0 {
		return fmt.Sprintf("%s group %d: %v", e.Phase, e.Group+1, e.Err)
	}

	if e.Identity == "" {
		return fmt.Sprintf("%s group %d, query %d: %v", e.Phase, e.Group+1, e.Item+1, e.Err)
	}

	return fmt.Sprintf("%s group %d, query %d (%s): %v",
		e.Phase, e.Group+1, e.Item+1, engine.Truncate(e.Identity, 60), e.Err)
}

func (e *ItemError) Cause() error  { return e.Err }
func (e *ItemError) Unwrap() error { return e.Err }

// New creates an orchestrator from config.
func New(config Config) *Orchestrator {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loader := config.Loader
	if loader == nil {
		loader = &source.Loader{}
	}

	history := config.Ledger
	if history == nil {
		history = ledger.NewMemory()
	}

	store := config.Facts
	if store == nil {
		store = facts.New(nil)
	}

	return &Orchestrator{
		resolver: config.Resolver,
		dispatcher: engine.NewDispatcher(config.Registry, engine.Options{
			Check:  config.Check,
			Logger: logger,
		}),
		loader: loader,
		ledger: history,
		store:  store,
		config: config,
		base:   logger,
		logger: logger,
		state:  StateInit,
	}
}

// Facts is the fact store. It is frozen once the admin phase starts.
func (o *Orchestrator) Facts() *facts.Store { return o.store }

// State is the current state of the orchestrator.
func (o *Orchestrator) State() State { return o.state }

// Run executes spec. The returned report is never nil; the error is the
// first failure, also available as report.Failure.
func (o *Orchestrator) Run(ctx context.Context, spec *Spec) (*Report, error) {
	report := &Report{
		RunID:   uuid.NewString(),
		State:   StateInit,
		Check:   o.config.Check,
		Started: time.Now(),
	}

	o.logger = o.base.With("run_id", report.RunID)
	o.transition(report, StateInit)

	plans, err := o.init(spec)
	if err != nil {
		return o.fail(report, err)
	}

	var firstErr error
	for _, p := range plans {
		if p.phase == AdminPhaseName {
			o.store.Freeze()
			o.transition(report, StateAdminPhase)
		} else {
			o.transition(report, StateFactPhase)
		}

		err := o.runPhase(ctx, p, report)
		if err == nil {
			continue
		}

		if !o.config.ContinueOnError || errors.Is(err, context.Canceled) {
			return o.fail(report, err)
		}

		if firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		return o.fail(report, firstErr)
	}

	o.transition(report, StateDone)
	o.finish(report)
	return report, nil
}

// Validate runs the Init checks without executing anything.
func (o *Orchestrator) Validate(spec *Spec) error {
	_, err := o.init(spec)
	return err
}

// init validates the structure of spec and resolves every connection context
// up front, so configuration errors surface before anything runs.
func (o *Orchestrator) init(spec *Spec) ([]plan, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	var plans []plan
	for _, phase := range []struct {
		name   Phase
		groups []QueryGroup
	}{
		{FactPhaseName, spec.FactGroups},
		{AdminPhaseName, spec.AdminGroups},
	} {
		if len(phase.groups) == 0 {
			continue
		}

		p := plan{phase: phase.name, groups: phase.groups, contexts: make([][]*connection.Context, len(phase.groups))}
		for gi, g := range phase.groups {
			if g.Engine == "" && o.resolver.Defaults.Engine == "" {
				return nil, &ItemError{Phase: phase.name, Group: gi, Item: -1, Err: &connection.ConfigError{
					Reason: "no engine set on the group or the defaults",
				}}
			}

			p.contexts[gi] = make([]*connection.Context, len(g.Queries))
			for qi, q := range g.Queries {
				cctx, err := o.resolver.Resolve(connection.Request{
					GroupEngine:     g.Engine,
					GroupDB:         g.DB,
					GroupAutocommit: g.Autocommit,
					ItemEngine:      q.Engine,
					ItemDB:          q.DB,
				})
				if err != nil {
					return nil, &ItemError{Phase: phase.name, Group: gi, Item: qi, Err: err}
				}

				p.contexts[gi][qi] = cctx
			}
		}

		plans = append(plans, p)
	}

	return plans, nil
}

func (o *Orchestrator) runPhase(ctx context.Context, p plan, report *Report) error {
	var firstErr error

	for gi := range p.groups {
		err := o.runGroup(ctx, p, gi, report)
		if err == nil {
			continue
		}

		if !o.config.ContinueOnError || errors.Is(err, context.Canceled) {
			return err
		}

		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (o *Orchestrator) runGroup(ctx context.Context, p plan, gi int, report *Report) error {
	group := p.groups[gi]
	label := group.Label(p.phase, gi)
	logger := o.logger.With("phase", p.phase, "group", label)

	sess := o.dispatcher.Session()
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("Failed to close connection", "error", err)
		}
	}()

	logger.Info("Running query group", "queries", len(group.Queries))

	var firstErr error
	for qi, item := range group.Queries {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "batch cancelled")
		}

		err := o.runItem(ctx, sess, p, gi, qi, item, report, logger)
		if err == nil {
			continue
		}

		if !o.config.ContinueOnError {
			return err
		}

		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (o *Orchestrator) runItem(
	ctx context.Context,
	sess *engine.Session,
	p plan,
	gi, qi int,
	item QueryItem,
	report *Report,
	logger *slog.Logger,
) error {
	group := p.groups[gi]
	cctx := p.contexts[gi][qi]
	fail := func(identity string, err error) error {
		return &ItemError{Phase: p.phase, Group: gi, Item: qi, Engine: cctx.Engine, Identity: identity, Err: err}
	}

	identity, err := o.loader.Identity(item.Query)
	if err != nil {
		return o.record(report, p, group.Label(p.phase, gi), item, cctx, identity, nil, 0, fail(item.Query, err))
	}

	if !group.Split && o.ledger.Has(identity) {
		logger.Info("Already completed, skipping", "query", engine.Truncate(identity, 60))
		return o.record(report, p, group.Label(p.phase, gi), item, cctx, identity, nil, 0, nil)
	}

	src, err := o.loader.Load(item.Query, o.store, o.config.Vars)
	if err != nil {
		return o.record(report, p, group.Label(p.phase, gi), item, cctx, identity, nil, 0, fail(identity, err))
	}

	statements := []string{src.Text}
	identities := []string{src.Identity}
	if group.Split {
		if statements, err = sqltext.Split(src.Text); err != nil {
			return o.record(report, p, group.Label(p.phase, gi), item, cctx, identity, nil, 0, fail(identity, err))
		}

		identities = statements
	}

	for i, sql := range statements {
		if group.Split && o.ledger.Has(identities[i]) {
			logger.Info("Already completed, skipping", "query", engine.Truncate(identities[i], 60))
			if err := o.record(report, p, group.Label(p.phase, gi), item, cctx, identities[i], nil, 0, nil); err != nil {
				return err
			}

			continue
		}

		start := time.Now()
		res, err := o.execute(ctx, sess, cctx, group, item, identities[i], sql)
		if err != nil {
			return o.record(report, p, group.Label(p.phase, gi), item, cctx, identities[i], nil, time.Since(start), fail(identities[i], err))
		}

		if err := o.record(report, p, group.Label(p.phase, gi), item, cctx, identities[i], res, time.Since(start), nil); err != nil {
			return fail(identities[i], err)
		}
	}

	return nil
}

func (o *Orchestrator) execute(
	ctx context.Context,
	sess *engine.Session,
	cctx *connection.Context,
	group QueryGroup,
	item QueryItem,
	identity string,
	sql string,
) (*engine.Result, error) {
	bound, err := params.Resolve(sql, item.PositionalArgs, item.NamedArgs, o.store)
	if err != nil {
		return nil, err
	}

	return sess.Dispatch(ctx, cctx, engine.Statement{
		Identity: identity,
		Bound:    bound,
		Timeout:  firstTimeout(item.Timeout, group.Timeout, o.config.Timeout),
	})
}

// record applies the outcome of one statement: the fact store and ledger are
// updated for executed statements, the report and metrics for all of them.
// A non-nil error is returned when the statement failed or its completion
// couldn't be recorded.
func (o *Orchestrator) record(
	report *Report,
	p plan,
	label string,
	item QueryItem,
	cctx *connection.Context,
	identity string,
	res *engine.Result,
	elapsed time.Duration,
	failure error,
) error {
	result := &ItemResult{
		Phase:    p.phase,
		Group:    label,
		Name:     item.Name,
		Engine:   cctx.Engine,
		Identity: identity,
		Duration: elapsed,
	}
	report.Results = append(report.Results, result)

	logger := o.logger.With("phase", p.phase, "group", label, "engine", cctx.Engine, "query", engine.Truncate(identity, 60))

	switch {
	case failure != nil:
		result.Status = StatusFailed
		result.Err = failure
		report.Failed++
		o.config.Metrics.RecordQuery(string(p.phase), cctx.Engine, metrics.OutcomeFailed, elapsed)
		logger.Error("Query failed", "error", failure)
		return failure

	case res == nil:
		result.Status = StatusSkipped
		report.Skipped++
		o.config.Metrics.RecordQuery(string(p.phase), cctx.Engine, metrics.OutcomeSkipped, 0)
		return nil

	case res.Status == engine.StatusSkippedCheck:
		result.Status = StatusSkippedCheck
		report.Skipped++
		o.config.Metrics.RecordQuery(string(p.phase), cctx.Engine, metrics.OutcomeSkippedCheck, 0)
		return nil
	}

	result.Status = StatusExecuted
	result.Changed = res.Changed
	result.Rows = len(res.Rows)

	if p.phase == FactPhaseName {
		if err := o.store.Set(item.Name, res.Value()); err != nil {
			return o.markFailed(report, result, p, cctx, elapsed, err)
		}
	}

	if !o.config.Check {
		if err := o.ledger.Record(identity); err != nil {
			return o.markFailed(report, result, p, cctx, elapsed, errors.Wrap(err, "failed to record history"))
		}
	}

	report.Executed++
	o.config.Metrics.RecordQuery(string(p.phase), cctx.Engine, metrics.OutcomeExecuted, elapsed)
	logger.Info("Query executed", "changed", res.Changed, "rows", len(res.Rows), "duration", elapsed)
	return nil
}

func (o *Orchestrator) markFailed(report *Report, result *ItemResult, p plan, cctx *connection.Context, elapsed time.Duration, err error) error {
	result.Status = StatusFailed
	result.Err = err
	report.Failed++
	o.config.Metrics.RecordQuery(string(p.phase), cctx.Engine, metrics.OutcomeFailed, elapsed)
	o.logger.Error("Query failed", "query", engine.Truncate(result.Identity, 60), "error", err)
	return err
}

func (o *Orchestrator) transition(report *Report, state State) {
	if o.state != state {
		o.logger.Debug("Batch state changed", "from", o.state, "to", state)
	}

	o.state = state
	report.State = state
	o.config.Metrics.SetState(string(state), allStates)
}

func (o *Orchestrator) fail(report *Report, err error) (*Report, error) {
	var itemErr *ItemError
	if !errors.As(err, &itemErr) {
		itemErr = &ItemError{Err: err}
		if specErr, ok := errors.Cause(err).(*SpecError); ok {
			itemErr = &ItemError{Phase: specErr.Phase, Group: specErr.Group, Item: specErr.Item, Err: err}
		}
	}

	report.Failure = itemErr
	o.transition(report, StateFailed)
	o.finish(report)
	o.logger.Error("Batch failed", "error", err)
	return report, err
}

func (o *Orchestrator) finish(report *Report) {
	report.Elapsed = time.Since(report.Started)
	o.config.Metrics.SetFacts(o.store.Len())
	o.config.Metrics.Finish(time.Now())

	o.logger.Info("Batch finished",
		"state", report.State,
		"executed", report.Executed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"elapsed", report.Elapsed,
	)
}

func firstTimeout(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}

	return 0
}
