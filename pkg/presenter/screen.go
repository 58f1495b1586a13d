package presenter

import (
	"context"
	"errors"
	"sync"

	"fundwizard/pkg/draft"
	"fundwizard/pkg/executor"
	"fundwizard/pkg/invalidate"
	"fundwizard/pkg/logging"
	"fundwizard/pkg/wizard"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotAllowed is returned for an action the current state does not
	// offer.
	ErrNotAllowed = errors.New("presenter: action not available in this state")

	// ErrNoNavigator is returned when an action needs to navigate but the
	// screen has nowhere to go.
	ErrNoNavigator = errors.New("presenter: no navigator")
)

// IncompleteMessage is shown when the draft is incomplete and the screen
// cannot route back to the missing step.
const IncompleteMessage = "Algumas informações estão faltando. Volte e preencha os dados da operação."

// HomePath is where GoHome navigates.
const HomePath = "/"

// ReceiptPath is where ViewReceipt navigates for result id.
func ReceiptPath(id string) string {
	return "/receipts/" + id
}

// Navigator moves the user to a path.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Submitter finalizes a draft. *executor.Executor satisfies it.
type Submitter interface {
	Submit(ctx context.Context, store executor.DraftStore) executor.Outcome
}

// Invalidator marks views stale. *invalidate.Invalidator satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context, scopes ...invalidate.Scope)
}

// Option customises a Screen.
type Option func(*Screen)

func WithNavigator(n Navigator) Option {
	return func(s *Screen) { s.nav = n }
}

func WithInvalidator(inv Invalidator) Option {
	return func(s *Screen) { s.inv = inv }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Screen) { s.logger = l }
}

// WithID overrides the generated screen id.
func WithID(id string) Option {
	return func(s *Screen) { s.id = id }
}

// Screen is one confirmation-screen instance. Mounting it submits the draft
// at most once; a new submission needs a new Screen.
type Screen struct {
	id        string
	kind      draft.Kind
	store     executor.DraftStore
	submitter Submitter
	nav       Navigator
	inv       Invalidator
	logger    *logging.Logger

	once sync.Once
	done chan struct{}

	mu         sync.Mutex
	state      State
	mounted    bool
	resolved   bool
	redirectTo string
	subs       []chan State
}

// NewScreen creates a screen for the draft held by store.
func NewScreen(store executor.DraftStore, submitter Submitter, opts ...Option) *Screen {
	s := &Screen{
		kind:      store.Kind(),
		store:     store,
		submitter: submitter,
		state:     Processing{},
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	s.logger = logging.OrGlobal(s.logger).Named("presenter").With(
		zap.String("screen", s.id),
		zap.String("kind", string(s.kind)),
	)
	return s
}

func (s *Screen) ID() string {
	return s.id
}

func (s *Screen) Kind() draft.Kind {
	return s.kind
}

// State returns the visible state.
func (s *Screen) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View renders the visible state.
func (s *Screen) View() View {
	return Render(s.kind, s.State())
}

// Redirect returns the path the screen routed to when the draft turned out
// to be incomplete.
func (s *Screen) Redirect() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redirectTo, s.redirectTo != ""
}

// Mount shows the screen and starts the submission in the background. Only
// the first call submits; the screen stays in Processing until it resolves.
func (s *Screen) Mount(ctx context.Context) {
	s.once.Do(func() {
		s.mu.Lock()
		s.mounted = true
		s.mu.Unlock()

		go s.run(context.WithoutCancel(ctx))
	})
}

// Unmount hides the screen. A submission still in flight completes with
// all of its side effects, but the visible state no longer changes.
func (s *Screen) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounted = false
}

func (s *Screen) run(ctx context.Context) {
	var out executor.Outcome
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("submission panicked", zap.Any("panic", r))
				out = executor.Failed{Message: executor.GenericFailureMessage}
			}
		}()
		out = s.submitter.Submit(ctx, s.store)
	}()
	s.resolve(out)
}

func (s *Screen) resolve(out executor.Outcome) {
	s.mu.Lock()

	if !s.mounted {
		s.resolved = true
		subs := s.subs
		s.subs = nil
		s.mu.Unlock()

		s.logger.Debug("submission resolved after unmount, state left unchanged")
		for _, ch := range subs {
			close(ch)
		}
		close(s.done)
		return
	}

	var next State = Processing{}
	var navigateTo string

	switch o := out.(type) {
	case executor.Concluded:
		next = Concluded{Result: o.Result}
	case executor.Failed:
		next = Failed{Message: o.Message, Err: o.Err}
	case executor.Redirect:
		if s.nav == nil {
			next = Failed{Message: IncompleteMessage}
		} else {
			navigateTo = o.Path()
			s.redirectTo = navigateTo
		}
	}

	s.state = next
	s.resolved = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	if navigateTo != "" {
		s.logger.Debug("draft incomplete, leaving confirmation", zap.String("path", navigateTo))
		s.nav.Navigate(navigateTo)
	} else {
		s.logger.Debug("submission resolved", zap.String("state", Name(next)))
	}

	for _, ch := range subs {
		if Terminal(next) {
			ch <- next
		}
		close(ch)
	}
	close(s.done)
}

// Wait blocks until the submission resolves or ctx ends and returns the
// visible state.
func (s *Screen) Wait(ctx context.Context) (State, error) {
	select {
	case <-s.done:
		return s.State(), nil
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}
}

// Done is closed once the submission resolves.
func (s *Screen) Done() <-chan struct{} {
	return s.done
}

// Subscribe returns a channel that receives the terminal state and is then
// closed. It is closed without a value when the screen redirects or was
// unmounted before resolving.
func (s *Screen) Subscribe() <-chan State {
	ch := make(chan State, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolved {
		if Terminal(s.state) {
			ch <- s.state
		}
		close(ch)
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

// Retry leaves a failed screen for the kind's first correctable step. The
// draft was preserved, so earlier steps need not be re-entered.
func (s *Screen) Retry() (string, error) {
	if _, ok := s.State().(Failed); !ok {
		return "", ErrNotAllowed
	}
	if s.nav == nil {
		return "", ErrNoNavigator
	}

	path := wizard.Path(s.kind, wizard.RetryStep(s.kind))
	s.nav.Navigate(path)
	return path, nil
}

// GoHome navigates home. Leaving a concluded screen first invalidates the
// home summary so it shows the new balance.
func (s *Screen) GoHome(ctx context.Context) error {
	if s.nav == nil {
		return ErrNoNavigator
	}
	if _, ok := s.State().(Concluded); ok && s.inv != nil {
		s.inv.Invalidate(ctx, invalidate.HomeScope())
	}
	s.nav.Navigate(HomePath)
	return nil
}

// ViewReceipt navigates to the receipt of a concluded submission.
func (s *Screen) ViewReceipt() (string, error) {
	c, ok := s.State().(Concluded)
	if !ok {
		return "", ErrNotAllowed
	}
	if s.nav == nil {
		return "", ErrNoNavigator
	}

	path := ReceiptPath(c.Result.ID)
	s.nav.Navigate(path)
	return path, nil
}
