package auth

import (
	"context"
	"fmt"
	"sync"
)

// DefaultPageSize is the number of users fetched per admin page.
const DefaultPageSize = 20

// EmptyDirectoryMessage is shown when a page holds no users.
const EmptyDirectoryMessage = "No users found"

// ConfirmFunc asks the operator to confirm a status change. Returning false
// cancels it before any backend call.
type ConfirmFunc func(ctx context.Context, record AdminUserRecord, target UserStatus) bool

// AdminDirectoryOption configures an AdminDirectory.
type AdminDirectoryOption func(*AdminDirectory)

// WithPageSize overrides DefaultPageSize.
func WithPageSize(size int) AdminDirectoryOption {
	return func(d *AdminDirectory) {
		if size > 0 {
			d.pageSize = size
		}
	}
}

// WithDirectoryLogger sets the directory logger.
func WithDirectoryLogger(logger Logger) AdminDirectoryOption {
	return func(d *AdminDirectory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDirectoryStateMachine overrides the state machine used for status changes.
func WithDirectoryStateMachine(sm AccountStateMachine) AdminDirectoryOption {
	return func(d *AdminDirectory) {
		if sm != nil {
			d.machine = sm
		}
	}
}

// WithDirectoryActor names the operator recorded on status changes.
func WithDirectoryActor(actor ActorRef) AdminDirectoryOption {
	return func(d *AdminDirectory) {
		d.actor = actor
	}
}

// AdminDirectory is a paginated view over backend managed accounts with
// per row suspension. Every mutation is followed by a refetch of the
// current page, the local snapshot is never patched.
type AdminDirectory struct {
	api      AdminAPI
	machine  AccountStateMachine
	pageSize int
	logger   Logger
	actor    ActorRef

	mu         sync.Mutex
	page       int
	records    []AdminUserRecord
	total      int
	generation uint64
	loading    bool
	lastErr    error
	updating   map[string]struct{}
}

// NewAdminDirectory returns a directory positioned before the first page.
func NewAdminDirectory(api AdminAPI, opts ...AdminDirectoryOption) *AdminDirectory {
	d := &AdminDirectory{
		api:      api,
		pageSize: DefaultPageSize,
		logger:   defLogger{},
		actor:    ActorRef{Type: "admin"},
		page:     1,
		updating: map[string]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.machine == nil {
		d.machine = NewAccountStateMachine(api, WithStateMachineLogger(d.logger))
	}
	return d
}

// Load fetches page (1-indexed). Only the response of the most recent fetch
// is applied, late responses of earlier fetches are dropped. A page past the
// end is replaced by the last page.
func (d *AdminDirectory) Load(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}

	d.mu.Lock()
	d.generation++
	gen := d.generation
	d.loading = true
	d.mu.Unlock()

	result, err := d.api.ListUsers(ctx, page, d.pageSize)

	d.mu.Lock()
	if gen != d.generation {
		d.logger.Debug("dropping stale users page %d (generation %d, current %d)", page, gen, d.generation)
		d.mu.Unlock()
		return nil
	}

	d.loading = false
	if err != nil {
		d.lastErr = err
		d.mu.Unlock()
		d.logger.Error("failed to load users page %d: %v", page, err)
		return err
	}

	total := 0
	if result != nil {
		total = result.Total
	}
	if last := pageCount(total, d.pageSize); last > 0 && page > last {
		d.mu.Unlock()
		d.logger.Debug("users page %d is past the last page %d", page, last)
		return d.Load(ctx, last)
	}

	d.lastErr = nil
	d.page = page
	d.total = total
	d.records = nil
	if result != nil {
		d.records = append([]AdminUserRecord(nil), result.Users...)
	}
	d.mu.Unlock()
	return nil
}

// Reload fetches the current page again.
func (d *AdminDirectory) Reload(ctx context.Context) error {
	return d.Load(ctx, d.Page())
}

// Next loads the following page, doing nothing on the last page.
func (d *AdminDirectory) Next(ctx context.Context) error {
	if !d.HasNext() {
		return nil
	}
	return d.Load(ctx, d.Page()+1)
}

// Prev loads the previous page, doing nothing on the first page.
func (d *AdminDirectory) Prev(ctx context.Context) error {
	if !d.HasPrev() {
		return nil
	}
	return d.Load(ctx, d.Page()-1)
}

// SetSuspended changes the suspension flag of userID after confirm agrees.
// While the call is outstanding IsUpdating reports true for that row only.
func (d *AdminDirectory) SetSuspended(ctx context.Context, userID string, suspended bool, confirm ConfirmFunc) error {
	record, ok := d.Record(userID)
	if !ok {
		return NewError(ErrNotFound, nil, map[string]any{"user_id": userID})
	}

	d.mu.Lock()
	if _, busy := d.updating[userID]; busy {
		d.mu.Unlock()
		return NewError(ErrInvalidInput, nil, map[string]any{
			"user_id": userID,
			"reason":  "update already in progress",
		})
	}
	d.mu.Unlock()

	target := UserStatusActive
	if suspended {
		target = UserStatusSuspended
	}

	marked := false
	defer func() {
		if marked {
			d.mu.Lock()
			delete(d.updating, userID)
			d.mu.Unlock()
		}
	}()

	_, err := d.machine.Transition(ctx, d.actor, record, target,
		WithTransitionReason(fmt.Sprintf("admin set suspended=%t", suspended)),
		WithBeforeTransitionHook(func(ctx context.Context, tc TransitionContext) error {
			if confirm != nil && !confirm(ctx, tc.Record, tc.To) {
				return NewError(ErrConfirmationDenied, nil, map[string]any{
					"user_id": tc.Record.ID,
					"to":      tc.To,
				})
			}
			d.mu.Lock()
			defer d.mu.Unlock()
			if _, busy := d.updating[userID]; busy {
				return NewError(ErrInvalidInput, nil, map[string]any{
					"user_id": userID,
					"reason":  "update already in progress",
				})
			}
			d.updating[userID] = struct{}{}
			marked = true
			return nil
		}),
	)
	if err != nil {
		if !HasTextCode(err, TextCodeConfirmationDenied) {
			d.logger.Error("failed to set suspended=%t for %s: %v", suspended, userID, err)
		}
		return err
	}

	if err := d.Reload(ctx); err != nil {
		d.logger.Warn("refetch after status change failed: %v", err)
	}
	return nil
}

// IsUpdating reports whether a status change for userID is in flight.
func (d *AdminDirectory) IsUpdating(userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.updating[userID]
	return ok
}

// Record returns the record for userID from the current page.
func (d *AdminDirectory) Record(userID string) (AdminUserRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.records {
		if r.ID == userID {
			return r, true
		}
	}
	return AdminUserRecord{}, false
}

// Records returns a copy of the current page.
func (d *AdminDirectory) Records() []AdminUserRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]AdminUserRecord(nil), d.records...)
}

// Loading reports whether the latest fetch is still outstanding.
func (d *AdminDirectory) Loading() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loading
}

// Err returns the error of the latest fetch, if any.
func (d *AdminDirectory) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// Page returns the current 1-indexed page.
func (d *AdminDirectory) Page() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.page
}

// Total returns the total number of users reported by the backend.
func (d *AdminDirectory) Total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

// PageSize returns the configured page size.
func (d *AdminDirectory) PageSize() int {
	return d.pageSize
}

// TotalPages is ceil(total / pageSize).
func (d *AdminDirectory) TotalPages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalPages()
}

func (d *AdminDirectory) totalPages() int {
	return pageCount(d.total, d.pageSize)
}

func pageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// HasPrev reports whether a previous page exists.
func (d *AdminDirectory) HasPrev() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.page > 1
}

// HasNext reports whether a following page exists.
func (d *AdminDirectory) HasNext() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.page < d.totalPages()
}

// PageLabel renders "Page 2 of 3".
func (d *AdminDirectory) PageLabel() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	pages := d.totalPages()
	if pages == 0 {
		pages = 1
	}
	return fmt.Sprintf("Page %d of %d", d.page, pages)
}

// RangeLabel renders "21 to 40 of 45", or the empty message when there are
// no users.
func (d *AdminDirectory) RangeLabel() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.total == 0 {
		return EmptyDirectoryMessage
	}
	start := (d.page-1)*d.pageSize + 1
	if start > d.total {
		return EmptyDirectoryMessage
	}
	end := d.page * d.pageSize
	if end > d.total {
		end = d.total
	}
	return fmt.Sprintf("%d to %d of %d", start, end, d.total)
}
