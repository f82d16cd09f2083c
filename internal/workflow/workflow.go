// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package workflow sequences the session-key workflow:
//
//  1. signer-address     read the primary signer's address
//  2. provision-account  create the smart account
//  3. create-session     create a session for a fresh session key
//  4. authorize-session  sign the session with the primary signer
//  5. prepare-calls      build the user operation
//  6. sign-and-send      sign with the session key, relay, poll for the hash
//
// A step runs only when every step before it has produced its output and no
// step is in flight. Running a step discards the outputs of every later step.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skflow/skflow/internal/authz"
	"github.com/skflow/skflow/internal/metrics"
	"github.com/skflow/skflow/internal/poller"
	"github.com/skflow/skflow/internal/sessionkey"
	"github.com/skflow/skflow/internal/signer"
	"github.com/skflow/skflow/internal/step"
	"github.com/skflow/skflow/internal/util"
	"github.com/skflow/skflow/internal/walletapi"
)

// Step numbers a workflow step. Done is one past the last step.
type Step int

const (
	StepSignerAddress Step = iota + 1
	StepProvisionAccount
	StepCreateSession
	StepAuthorizeSession
	StepPrepareCalls
	StepSignAndSend
	Done
)

// Steps lists every step in order.
var Steps = []Step{
	StepSignerAddress,
	StepProvisionAccount,
	StepCreateSession,
	StepAuthorizeSession,
	StepPrepareCalls,
	StepSignAndSend,
}

var stepNames = map[Step]string{
	StepSignerAddress:    "signer-address",
	StepProvisionAccount: "provision-account",
	StepCreateSession:    "create-session",
	StepAuthorizeSession: "authorize-session",
	StepPrepareCalls:     "prepare-calls",
	StepSignAndSend:      "sign-and-send",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	if s == Done {
		return "done"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Valid reports whether s is one of the six steps.
func (s Step) Valid() bool {
	return s >= StepSignerAddress && s <= StepSignAndSend
}

// ParseStep accepts a step number or name.
func ParseStep(v string) (Step, error) {
	for _, s := range Steps {
		if v == s.String() || v == fmt.Sprint(int(s)) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown step %q", v)
}

var (
	// ErrSessionKeyMismatch indicates the backend bound the session to a key
	// other than the one generated for it.
	ErrSessionKeyMismatch = errors.New("session key returned by backend does not match the generated key")

	// ErrInvalidSelection indicates an unsupported permission type or session duration.
	ErrInvalidSelection = errors.New("invalid session selection")
)

// StepError is a step failure. Message is what the step recorded, which for
// sign-and-send may be a remediation hint rather than the backend text.
type StepError struct {
	Step    Step
	Message string
	Err     error
}

func (e *StepError) Error() string { return e.Message }

func (e *StepError) Unwrap() error { return e.Err }

// Backend is the wallet API. *walletapi.Client implements it.
type Backend interface {
	ProvisionAccount(ctx context.Context, params walletapi.ProvisionParams) (*walletapi.SmartAccount, error)
	CreateSession(ctx context.Context, params walletapi.CreateSessionParams) (*walletapi.Session, error)
	PrepareCalls(ctx context.Context, params walletapi.PrepareCallsParams) (*walletapi.PreparedCall, error)
	SendPreparedCalls(ctx context.Context, params walletapi.SendCallsParams) ([]string, error)
	CallStatus(ctx context.Context, callID string) (*walletapi.CallStatus, error)
}

// Settings are the user's selections for a run.
type Settings struct {
	UserID         string
	ChainID        string
	PermissionType string
	SessionTime    string
	Call           walletapi.Call
}

// SettingsFromConfig builds Settings from the loaded config. An empty user id
// is replaced with a random one.
func SettingsFromConfig(cfg *util.Config) Settings {
	userID := cfg.UserID
	if userID == "" {
		userID = uuid.NewString()
	}
	return Settings{
		UserID:         userID,
		ChainID:        cfg.ChainID,
		PermissionType: cfg.PermissionType,
		SessionTime:    cfg.SessionTime,
		Call:           walletapi.Call{To: cfg.Call.To, Value: cfg.Call.Value, Data: cfg.Call.Data},
	}
}

// Submission is the outcome of sign-and-send.
type Submission struct {
	UserOpSignature string
	CallIDs         []string

	// Polled is the call id that was polled, "" if none was returned.
	Polled string
	TxHash string

	// PollErr is the polling failure, kept apart from the submission itself.
	PollErr error
}

// Listener is notified after every state change.
type Listener func(Snapshot)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records step outcomes and poll attempts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithListener sets the state change listener.
func WithListener(l Listener) Option {
	return func(o *Orchestrator) { o.listener = l }
}

// WithChainName sets the chain name used in remediation messages.
func WithChainName(name string) Option {
	return func(o *Orchestrator) { o.chainName = name }
}

// WithPollSleep replaces the poller's clock.
func WithPollSleep(sleep poller.SleepFunc) Option {
	return func(o *Orchestrator) { o.pollSleep = sleep }
}

// WithPollBudget overrides the poll attempt count and interval.
func WithPollBudget(attempts int, interval time.Duration) Option {
	return func(o *Orchestrator) {
		o.pollAttempts = attempts
		o.pollInterval = interval
	}
}

// WithClock replaces time.Now for session expiry.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithKeyGenerator replaces session key generation.
func WithKeyGenerator(gen func() (*sessionkey.Key, error)) Option {
	return func(o *Orchestrator) { o.generateKey = gen }
}

// Orchestrator owns the state of one workflow run.
type Orchestrator struct {
	backend    Backend
	signer     signer.Signer
	authorizer *authz.Authorizer
	poller     *poller.Poller

	metrics      *metrics.Metrics
	listener     Listener
	chainName    string
	pollSleep    poller.SleepFunc
	pollAttempts int
	pollInterval time.Duration
	now          func() time.Time
	generateKey  func() (*sessionkey.Key, error)

	provision     *step.Hook[walletapi.ProvisionParams, *walletapi.SmartAccount]
	createSession *step.Hook[walletapi.CreateSessionParams, *walletapi.Session]
	prepare       *step.Hook[walletapi.PrepareCallsParams, *walletapi.PreparedCall]
	send          *step.Hook[walletapi.SendCallsParams, []string]

	mu          sync.Mutex
	settings    Settings
	running     Step
	polling     bool
	pollAttempt int
	completed   map[Step]bool
	collapsed   map[Step]bool
	errs        map[Step]string

	signerAddress string
	account       *walletapi.SmartAccount
	session       *walletapi.Session
	authorization *authz.Authorization
	prepared      *walletapi.PreparedCall
	submission    *Submission
}

// New creates an Orchestrator. s may be nil, in which case no step can run
// until SetSigner is called.
func New(backend Backend, s signer.Signer, settings Settings, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:     backend,
		signer:      s,
		authorizer:  authz.New(s),
		settings:    settings,
		now:         time.Now,
		generateKey: sessionkey.Generate,
		completed:   make(map[Step]bool),
		collapsed:   make(map[Step]bool),
		errs:        make(map[Step]string),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.poller = poller.New(backend)
	o.poller.Metrics = o.metrics
	if o.pollSleep != nil {
		o.poller.Sleep = o.pollSleep
	}
	if o.pollAttempts > 0 {
		o.poller.MaxAttempts = o.pollAttempts
		o.poller.Interval = o.pollInterval
	}
	o.poller.OnAttempt = o.onPollAttempt

	o.provision = step.New[walletapi.ProvisionParams, *walletapi.SmartAccount](
		StepProvisionAccount.String(), backend.ProvisionAccount)
	o.createSession = step.New[walletapi.CreateSessionParams, *walletapi.Session](
		StepCreateSession.String(), backend.CreateSession)
	o.prepare = step.New[walletapi.PrepareCallsParams, *walletapi.PreparedCall](
		StepPrepareCalls.String(), backend.PrepareCalls)
	o.send = step.New[walletapi.SendCallsParams, []string](
		StepSignAndSend.String(), backend.SendPreparedCalls,
		step.WithMessage[walletapi.SendCallsParams, []string](o.remediate))

	return o
}

// SetSigner replaces the primary signer. Outputs are kept.
func (o *Orchestrator) SetSigner(s signer.Signer) {
	o.mu.Lock()
	o.signer = s
	o.authorizer = authz.New(s)
	o.mu.Unlock()
	o.notify()
}

// Settings returns the current selections.
func (o *Orchestrator) Settings() Settings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settings
}

// SetPermissionType selects the permission type for the next session.
func (o *Orchestrator) SetPermissionType(p string) error {
	if !util.IsPermissionType(p) {
		return fmt.Errorf("%w: permission type %q", ErrInvalidSelection, p)
	}
	o.mu.Lock()
	o.settings.PermissionType = p
	o.mu.Unlock()
	o.notify()
	return nil
}

// SetSessionTime selects the duration of the next session.
func (o *Orchestrator) SetSessionTime(d string) error {
	if _, err := util.SessionSeconds(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSelection, err)
	}
	o.mu.Lock()
	o.settings.SessionTime = d
	o.mu.Unlock()
	o.notify()
	return nil
}

// SetCall selects the call prepared by prepare-calls.
func (o *Orchestrator) SetCall(c walletapi.Call) {
	o.mu.Lock()
	o.settings.Call = c
	o.mu.Unlock()
	o.notify()
}

// CurrentStep returns the first step without an output, or Done.
func (o *Orchestrator) CurrentStep() Step {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentStepLocked()
}

func (o *Orchestrator) currentStepLocked() Step {
	switch {
	case o.signerAddress == "":
		return StepSignerAddress
	case o.account == nil:
		return StepProvisionAccount
	case o.session == nil:
		return StepCreateSession
	case o.authorization == nil:
		return StepAuthorizeSession
	case o.prepared == nil:
		return StepPrepareCalls
	case o.submission == nil:
		return StepSignAndSend
	}
	return Done
}

// IsAccessible reports whether n is the current step or one before it.
func (o *Orchestrator) IsAccessible(n Step) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return n.Valid() && n <= o.currentStepLocked()
}

// IsCompleted reports whether n finished successfully since it last started.
func (o *Orchestrator) IsCompleted(n Step) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completed[n]
}

// IsCollapsed reports whether n is collapsed in the display.
func (o *Orchestrator) IsCollapsed(n Step) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.collapsed[n]
}

// ToggleCollapse flips the display state of a completed step. It reports
// whether anything changed.
func (o *Orchestrator) ToggleCollapse(n Step) bool {
	o.mu.Lock()
	if !o.completed[n] {
		o.mu.Unlock()
		return false
	}
	o.collapsed[n] = !o.collapsed[n]
	o.mu.Unlock()
	o.notify()
	return true
}

// IsRunning reports whether a step is in flight.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running != 0
}

// CanRun reports whether Run(n) would execute.
func (o *Orchestrator) CanRun(n Step) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.canRunLocked(n)
}

func (o *Orchestrator) canRunLocked(n Step) bool {
	if !n.Valid() || o.running != 0 || n > o.currentStepLocked() {
		return false
	}
	switch n {
	case StepSignerAddress:
		return o.signer != nil
	case StepProvisionAccount:
		return o.signerAddress != ""
	case StepCreateSession:
		_, err := util.SessionSeconds(o.settings.SessionTime)
		return o.account != nil && util.IsPermissionType(o.settings.PermissionType) && err == nil
	case StepAuthorizeSession:
		return o.session != nil && o.signer != nil
	case StepPrepareCalls:
		return o.authorization != nil && o.account != nil && o.settings.Call.To != ""
	case StepSignAndSend:
		// A submitted user operation is never sent twice; preparing again
		// clears the submission.
		return !o.completed[StepSignAndSend] &&
			o.prepared != nil && o.authorization != nil && o.session != nil && o.session.SessionKey.PrivateKey != ""
	}
	return false
}

// Run executes step n. When n cannot run it returns false and a nil error
// without any I/O. Otherwise it returns true and the step's error, if any.
//
// For sign-and-send a nil error means the batch was submitted and its
// transaction hash found; a polling error is returned with the step still
// marked completed.
func (o *Orchestrator) Run(ctx context.Context, n Step) (bool, error) {
	o.mu.Lock()
	if !o.canRunLocked(n) {
		o.mu.Unlock()
		util.Debug("step not runnable", "step", n.String())
		return false, nil
	}
	o.running = n
	if prev := n - 1; prev.Valid() && o.completed[prev] {
		o.collapsed[prev] = true
	}
	o.clearFromLocked(n)
	o.mu.Unlock()
	o.notify()

	util.Debug("step started", "step", n.String())

	var err error
	switch n {
	case StepSignerAddress:
		err = o.runSignerAddress(ctx)
	case StepProvisionAccount:
		err = o.runProvisionAccount(ctx)
	case StepCreateSession:
		err = o.runCreateSession(ctx)
	case StepAuthorizeSession:
		err = o.runAuthorizeSession(ctx)
	case StepPrepareCalls:
		err = o.runPrepareCalls(ctx)
	case StepSignAndSend:
		err = o.runSignAndSend(ctx)
	}

	o.mu.Lock()
	o.running = 0
	o.polling = false
	completed := o.completed[n]
	var stepErr *StepError
	if err != nil && errors.As(err, &stepErr) {
		o.errs[n] = stepErr.Message
	}
	o.mu.Unlock()

	outcome := "ok"
	switch {
	case err != nil && completed:
		outcome = "unconfirmed"
		util.Logger.Warn("transaction not confirmed", "step", n.String(), "error", err)
	case err != nil:
		outcome = "error"
		util.Logger.Warn("step failed", "step", n.String(), "error", err)
	default:
		util.Debug("step completed", "step", n.String())
	}
	o.metrics.ObserveStep(n.String(), outcome)
	o.notify()
	return true, err
}

// Reset discards every output and starts over from the first step. Settings
// are kept. It reports false while a step is in flight.
func (o *Orchestrator) Reset() bool {
	o.mu.Lock()
	if o.running != 0 {
		o.mu.Unlock()
		return false
	}
	o.clearFromLocked(StepSignerAddress)
	o.provision.Reset()
	o.createSession.Reset()
	o.prepare.Reset()
	o.send.Reset()
	o.mu.Unlock()
	o.notify()
	return true
}

// clearFromLocked drops the outputs, errors and completion of n and every later step.
func (o *Orchestrator) clearFromLocked(n Step) {
	for _, s := range Steps {
		if s < n {
			continue
		}
		o.completed[s] = false
		o.collapsed[s] = false
		delete(o.errs, s)
		switch s {
		case StepSignerAddress:
			o.signerAddress = ""
		case StepProvisionAccount:
			o.account = nil
			if s > n {
				o.provision.Reset()
			}
		case StepCreateSession:
			o.session = nil
			if s > n {
				o.createSession.Reset()
			}
		case StepAuthorizeSession:
			o.authorization = nil
		case StepPrepareCalls:
			o.prepared = nil
			if s > n {
				o.prepare.Reset()
			}
		case StepSignAndSend:
			o.submission = nil
			o.pollAttempt = 0
			if s > n {
				o.send.Reset()
			}
		}
	}
}

// complete stores the output of n and marks it completed.
func (o *Orchestrator) complete(n Step, store func()) {
	o.mu.Lock()
	store()
	o.completed[n] = true
	o.mu.Unlock()
}

func (o *Orchestrator) remediate(err error) string {
	o.mu.Lock()
	account := ""
	if o.account != nil {
		account = o.account.AccountAddress
	}
	chain := o.chainName
	if chain == "" {
		chain = util.ChainName(o.settings.ChainID)
	}
	o.mu.Unlock()
	return walletapi.RemediateSendError(err.Error(), account, chain)
}

func (o *Orchestrator) onPollAttempt(attempt int, _ *walletapi.CallStatus, _ error) {
	o.mu.Lock()
	o.pollAttempt = attempt
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) notify() {
	if o.listener == nil {
		return
	}
	o.listener(o.Snapshot())
}

func stepFailure(n Step, err error) error {
	return &StepError{Step: n, Message: err.Error(), Err: err}
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
