package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tendant/wirekit/internal/cookie"
	"github.com/tendant/wirekit/internal/domain"
	apperrors "github.com/tendant/wirekit/internal/errors"
	"github.com/tendant/wirekit/internal/metrics"
	"github.com/tendant/wirekit/internal/resource"
	"github.com/tendant/wirekit/internal/rpc"
	"github.com/tendant/wirekit/internal/secret"
	"github.com/tendant/wirekit/internal/store"
)

const (
	// DefaultDuration is the session lifetime when none is configured.
	DefaultDuration = 7 * 24 * time.Hour
	// DefaultCookieName is the cookie holding the session token.
	DefaultCookieName = "identity"
)

// Action keys understood by SetState.
const (
	ActionSignup         = "signup"
	ActionSignin         = "signin"
	ActionSignout        = "signout"
	ActionChangePassword = "changepassword"
)

const (
	msgFieldRequired     = "Field is required."
	msgUserExists        = "User already exists."
	msgUserMissing       = "User doesn't exist."
	msgIncorrectPassword = "Incorrect password."
	msgNotRecognized     = "You're not signed in as a recognized user."
	msgWrongExisting     = "The provided existing password is incorrect."
	msgPasswordUpdated   = "Password updated."
	msgUnrecognized      = "Unrecognized authentication action."
	msgLockedOut         = "Too many failed sign-in attempts. Try again later."
)

// Service is the authentication state machine for one user pool. Sessions
// are HS256 JWTs in a cookie, signed with a secret owned by the service.
type Service struct {
	res        *resource.Resource
	users      *userStore
	rawSecret  *secret.Secret
	duration   time.Duration
	cookieName string
	keepalive  bool
	lockout    *Lockout
	now        func() time.Time
	logger     *slog.Logger

	mu         sync.Mutex
	signingKey []byte
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithDuration sets the session lifetime.
func WithDuration(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.duration = d
		}
	}
}

// WithCookieName sets the name of the session cookie.
func WithCookieName(name string) ServiceOption {
	return func(s *Service) {
		if name != "" {
			s.cookieName = name
		}
	}
}

// WithKeepalive makes every authenticated GetState extend the session.
func WithKeepalive(keepalive bool) ServiceOption {
	return func(s *Service) {
		s.keepalive = keepalive
	}
}

// WithLockout enables sign-in lockout.
func WithLockout(l *Lockout) ServiceOption {
	return func(s *Service) {
		s.lockout = l
	}
}

// WithClock overrides time.Now for token issue and verification.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// New creates the authentication service (scope, id). Users and the signing
// secret are stored through factory.
func New(scope resource.Scope, id string, factory store.Factory, opts ...ServiceOption) (*Service, error) {
	res := resource.New(scope, id)
	if _, err := res.AbsoluteID(); err != nil {
		return nil, err
	}

	s := &Service{
		res:        res,
		duration:   DefaultDuration,
		cookieName: DefaultCookieName,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	files, err := factory(res, "files")
	if err != nil {
		return nil, fmt.Errorf("opening user storage: %w", err)
	}
	s.users = &userStore{files: files, logger: s.logger}

	s.rawSecret, err = secret.New(res, "jwt-signing-secret", factory)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Resource returns the resource identifying the service.
func (s *Service) Resource() *resource.Resource { return s.res }

// CookieName returns the name of the session cookie.
func (s *Service) CookieName() string { return s.cookieName }

// Ping reads the signing secret from storage, bypassing the memoised copy.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.rawSecret.Read(ctx)
	return err
}

// signer returns a token signer, reading the secret on first use. Failed
// reads are retried on the next call.
func (s *Service) signer(ctx context.Context) (*tokenSigner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.signingKey == nil {
		value, err := s.rawSecret.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading signing secret: %w", err)
		}
		s.signingKey = []byte(value)
	}
	return &tokenSigner{secret: s.signingKey, now: s.now}, nil
}

// GetBaseState reports who the session cookie in jar belongs to. A missing,
// expired or tampered token yields the unauthenticated state.
func (s *Service) GetBaseState(ctx context.Context, jar *cookie.Jar) (*domain.BaseState, error) {
	unauthenticated := &domain.BaseState{State: domain.StateUnauthenticated}

	ck, ok := jar.Get(s.cookieName)
	if !ok || ck.Value == "" || ck.Value == cookie.DeletedValue {
		return unauthenticated, nil
	}

	signer, err := s.signer(ctx)
	if err != nil {
		return nil, err
	}

	user, err := signer.verify(ck.Value)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeTokenExpired) {
			s.logger.Debug("session token expired", "error", err)
			metrics.RecordSessionRejected("expired")
		} else {
			s.logger.Warn("session token rejected", "error", err)
			metrics.RecordSessionRejected("invalid")
		}
		return unauthenticated, nil
	}

	return &domain.BaseState{State: domain.StateAuthenticated, User: user}, nil
}

// GetState returns the base state plus the actions available from it.
func (s *Service) GetState(ctx context.Context, jar *cookie.Jar) (*domain.MachineState, error) {
	base, err := s.GetBaseState(ctx, jar)
	if err != nil {
		return nil, err
	}

	if base.State == domain.StateAuthenticated && s.keepalive {
		if err := s.issueSession(ctx, jar, base.User); err != nil {
			return nil, err
		}
	}

	return &domain.MachineState{BaseState: *base, Actions: actionsFor(base.State)}, nil
}

func actionsFor(state domain.State) map[string]domain.Action {
	if state == domain.StateAuthenticated {
		return map[string]domain.Action{
			ActionChangePassword: {
				Key:  ActionChangePassword,
				Name: "Change Password",
				Fields: map[string]domain.Field{
					"existingPassword": {Label: "Old Password", Type: domain.FieldPassword},
					"newPassword":      {Label: "New Password", Type: domain.FieldPassword},
				},
				Buttons: []string{"Change Password"},
			},
			ActionSignout: {
				Key:  ActionSignout,
				Name: "Sign out",
			},
		}
	}

	credentials := func() map[string]domain.Field {
		return map[string]domain.Field{
			"username": {Label: "Username", Type: domain.FieldText},
			"password": {Label: "Password", Type: domain.FieldPassword},
		}
	}
	return map[string]domain.Action{
		ActionSignin: {
			Key:     ActionSignin,
			Name:    "Sign In",
			Fields:  credentials(),
			Buttons: []string{"Sign In"},
		},
		ActionSignup: {
			Key:     ActionSignup,
			Name:    "Sign Up",
			Fields:  credentials(),
			Buttons: []string{"Sign Up"},
		},
	}
}

// SetState performs input. Validation and domain failures come back as
// result errors; storage failures are returned as err.
func (s *Service) SetState(ctx context.Context, jar *cookie.Jar, input domain.Input) (*domain.StateResult, error) {
	var (
		result *domain.StateResult
		err    error
	)
	switch input.Key {
	case ActionSignout:
		jar.Delete(s.cookieName)
		result, err = s.stateResult(ctx, jar, "")
	case ActionSignup:
		result, err = s.signup(ctx, jar, input)
	case ActionSignin:
		result, err = s.signin(ctx, jar, input)
	case ActionChangePassword:
		result, err = s.changePassword(ctx, jar, input)
	default:
		result = failure(domain.AuthError{Message: msgUnrecognized})
	}

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case result.Failed():
		outcome = "rejected"
	}
	metrics.RecordAuthAction(actionLabel(input.Key), outcome)
	return result, err
}

// actionLabel keeps metric label cardinality bounded.
func actionLabel(key string) string {
	switch key {
	case ActionSignup, ActionSignin, ActionSignout, ActionChangePassword:
		return key
	}
	return "unknown"
}

func failure(errs ...domain.AuthError) *domain.StateResult {
	return &domain.StateResult{Errors: errs}
}

func missingFields(input domain.Input, fields ...string) []domain.AuthError {
	var errs []domain.AuthError
	for _, f := range fields {
		if input.String(f) == "" {
			errs = append(errs, domain.AuthError{Field: f, Message: msgFieldRequired})
		}
	}
	return errs
}

func (s *Service) stateResult(ctx context.Context, jar *cookie.Jar, message string) (*domain.StateResult, error) {
	state, err := s.GetState(ctx, jar)
	if err != nil {
		return nil, err
	}
	state.Message = message
	return &domain.StateResult{MachineState: state}, nil
}

func (s *Service) signup(ctx context.Context, jar *cookie.Jar, input domain.Input) (*domain.StateResult, error) {
	if errs := missingFields(input, "username", "password"); errs != nil {
		return failure(errs...), nil
	}
	username, password := input.String("username"), input.String("password")

	exists, err := s.users.has(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return failure(domain.AuthError{Field: "username", Message: msgUserExists}), nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.create(ctx, username, hash)
	if err != nil {
		if s.users.files.IsAlreadyExists(err) {
			return failure(domain.AuthError{Field: "username", Message: msgUserExists}), nil
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user signed up", "user_id", user.ID, "username", user.Username)
	if err := s.issueSession(ctx, jar, user.Public()); err != nil {
		return nil, err
	}
	return s.stateResult(ctx, jar, "")
}

func (s *Service) signin(ctx context.Context, jar *cookie.Jar, input domain.Input) (*domain.StateResult, error) {
	if errs := missingFields(input, "username", "password"); errs != nil {
		return failure(errs...), nil
	}
	username, password := input.String("username"), input.String("password")

	if s.lockout.IsLocked(username) {
		s.logger.Warn("sign-in rejected for locked username", "username", username,
			"remaining", s.lockout.Remaining(username))
		return failure(domain.AuthError{Message: msgLockedOut}), nil
	}

	user, err := s.users.get(ctx, username)
	if store.IsNotFound(err) {
		return failure(domain.AuthError{Field: "username", Message: msgUserMissing}), nil
	}
	if err != nil {
		return nil, err
	}

	valid, err := VerifyPassword(password, user.Password)
	if err != nil {
		s.logger.Error("password verification error", "username", username, "error", err)
	}
	if !valid {
		if s.lockout.RecordFailure(username) {
			s.logger.Warn("username locked after repeated failures", "username", username)
			metrics.RecordAccountLockout()
		}
		return failure(domain.AuthError{Field: "password", Message: msgIncorrectPassword}), nil
	}
	s.lockout.RecordSuccess(username)

	s.logger.Info("user signed in", "user_id", user.ID, "username", user.Username)
	if err := s.issueSession(ctx, jar, user.Public()); err != nil {
		return nil, err
	}
	return s.stateResult(ctx, jar, "")
}

func (s *Service) changePassword(ctx context.Context, jar *cookie.Jar, input domain.Input) (*domain.StateResult, error) {
	base, err := s.GetBaseState(ctx, jar)
	if err != nil {
		return nil, err
	}
	notRecognized := failure(domain.AuthError{Field: "username", Message: msgNotRecognized})
	if base.User == nil {
		return notRecognized, nil
	}

	if errs := missingFields(input, "existingPassword", "newPassword"); errs != nil {
		return failure(errs...), nil
	}

	user, err := s.users.get(ctx, base.User.Username)
	if store.IsNotFound(err) {
		return notRecognized, nil
	}
	if err != nil {
		return nil, err
	}
	if user.ID != base.User.ID {
		return notRecognized, nil
	}

	valid, err := VerifyPassword(input.String("existingPassword"), user.Password)
	if err != nil {
		s.logger.Error("password verification error", "username", user.Username, "error", err)
	}
	if !valid {
		return failure(domain.AuthError{Field: "existingPassword", Message: msgWrongExisting}), nil
	}

	hash, err := HashPassword(input.String("newPassword"))
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.setPassword(ctx, user, hash); err != nil {
		return nil, fmt.Errorf("failed to update password: %w", err)
	}

	s.logger.Info("password changed", "user_id", user.ID)
	return s.stateResult(ctx, jar, msgPasswordUpdated)
}

func (s *Service) issueSession(ctx context.Context, jar *cookie.Jar, user *domain.User) error {
	signer, err := s.signer(ctx)
	if err != nil {
		return err
	}
	token, err := signer.issue(user, s.duration)
	if err != nil {
		return err
	}
	jar.Set(cookie.Cookie{
		Name:     s.cookieName,
		Value:    token,
		HTTPOnly: true,
		Secure:   true,
		MaxAge:   int(s.duration / time.Second),
	})
	return nil
}

// GetCurrentUser returns the signed-in user, or nil.
func (s *Service) GetCurrentUser(ctx context.Context, jar *cookie.Jar) (*domain.User, error) {
	base, err := s.GetBaseState(ctx, jar)
	if err != nil {
		return nil, err
	}
	return base.User, nil
}

// RequireCurrentUser is GetCurrentUser that fails with CodeUnauthorized when
// nobody is signed in.
func (s *Service) RequireCurrentUser(ctx context.Context, jar *cookie.Jar) (*domain.User, error) {
	user, err := s.GetCurrentUser(ctx, jar)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.Unauthorized("Unauthorized")
	}
	return user, nil
}

// Signup creates an account through the state machine, as a signup action
// would. Domain rejections are returned as CodeAlreadyExists or
// CodeInvalidInput errors.
func (s *Service) Signup(ctx context.Context, username, password string) (*domain.User, error) {
	jar := cookie.NewJar("")
	result, err := s.SetState(ctx, jar, domain.Input{
		Key:    ActionSignup,
		Inputs: map[string]any{"username": username, "password": password},
	})
	if err != nil {
		return nil, err
	}
	if result.Failed() {
		first := result.Errors[0]
		if first.Message == msgUserExists {
			return nil, apperrors.AlreadyExists("user", username, nil)
		}
		return nil, apperrors.InvalidInput(fmt.Sprintf("%s: %s", first.Field, first.Message))
	}
	return result.User, nil
}

// API exposes the service as a context-bound namespace.
func (s *Service) API() *rpc.Bound {
	return rpc.WithContext(func(c *rpc.Context) rpc.Node {
		return rpc.Namespace{
			"getState": rpc.Fn0(func(ctx context.Context) (*domain.MachineState, error) {
				return s.GetState(ctx, c.Cookies)
			}),
			"setState": rpc.Fn1(func(ctx context.Context, input domain.Input) (*domain.StateResult, error) {
				return s.SetState(ctx, c.Cookies, input)
			}),
			"getCurrentUser": rpc.Fn0(func(ctx context.Context) (*domain.User, error) {
				return s.GetCurrentUser(ctx, c.Cookies)
			}),
			"requireCurrentUser": rpc.Fn0(func(ctx context.Context) (*domain.User, error) {
				return s.RequireCurrentUser(ctx, c.Cookies)
			}),
		}
	})
}
