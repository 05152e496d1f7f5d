// internal/login/submit.go
package login

import (
	"context"
	"time"

	"github.com/xkilldash9x/gatepass/internal/config"
	"go.uber.org/zap"
)

// Pacer supplies the jitter between form steps.
type Pacer interface {
	InterField() time.Duration
	PerChar() time.Duration
	SubmitPause() time.Duration
}

// SubmitMethod records how the form was submitted.
type SubmitMethod string

const (
	SubmitClick SubmitMethod = "click"
	SubmitEnter SubmitMethod = "enter"
)

// SubmitResult describes a completed submission.
type SubmitResult struct {
	PriorURL    string
	Method      SubmitMethod
	SubmittedAt time.Time
}

// CredentialSubmitter fills and submits the login form.
type CredentialSubmitter struct {
	username Descriptor
	password Descriptor
	submit   Descriptor
	pacer    Pacer
	clock    Clock
	logger   *zap.Logger
}

// NewCredentialSubmitter builds a submitter from the configured selectors.
func NewCredentialSubmitter(cfg config.LoginConfig, pacer Pacer, clock Clock, logger *zap.Logger) *CredentialSubmitter {
	return &CredentialSubmitter{
		username: ParseDescriptor(cfg.Selectors.Username),
		password: ParseDescriptor(cfg.Selectors.Password),
		submit:   ParseDescriptor(cfg.Selectors.Submit),
		pacer:    pacer,
		clock:    clock,
		logger:   logger.Named("submit"),
	}
}

// Submit types the identifier and the secret and submits the form exactly once.
// Each field is checked for visibility and enabled state immediately before it is
// typed into; a failed check returns a PreconditionError and nothing further happens.
// An error from the submit action itself is returned as is.
func (s *CredentialSubmitter) Submit(ctx context.Context, drv PageDriver, creds *Credentials) (SubmitResult, error) {
	if creds == nil {
		return SubmitResult{}, &ConfigurationError{Missing: []string{"identifier", "secret"}}
	}

	if err := s.fill(ctx, drv, "username", s.username, creds.identifier); err != nil {
		return SubmitResult{}, err
	}
	if err := s.clock.Sleep(ctx, s.pacer.InterField()); err != nil {
		return SubmitResult{}, driverErr("pace", err)
	}
	if err := s.fill(ctx, drv, "password", s.password, creds.secret); err != nil {
		return SubmitResult{}, err
	}
	if err := s.clock.Sleep(ctx, s.pacer.SubmitPause()); err != nil {
		return SubmitResult{}, driverErr("pace", err)
	}

	prior, err := drv.CurrentURL(ctx)
	if err != nil {
		return SubmitResult{}, driverErr("read url", err)
	}

	method := SubmitEnter
	var button ElementHandle
	if s.submit.Query != "" {
		h, ok, err := visible(ctx, drv, s.submit)
		if err != nil {
			return SubmitResult{}, err
		}
		if ok {
			button, method = h, SubmitClick
		}
	}

	if method == SubmitClick {
		err = drv.Click(ctx, button)
	} else {
		err = drv.PressKey(ctx, KeyEnter)
	}
	if err != nil {
		return SubmitResult{}, err
	}

	s.logger.Info("Credentials submitted.", zap.String("method", string(method)))
	return SubmitResult{PriorURL: prior, Method: method, SubmittedAt: s.clock.Now()}, nil
}

// fill checks that the field is ready, focuses it and types text into it.
func (s *CredentialSubmitter) fill(ctx context.Context, drv PageDriver, role string, d Descriptor, text string) error {
	h, err := s.ready(ctx, drv, role, d)
	if err != nil {
		return err
	}
	if err := drv.Click(ctx, h); err != nil {
		return driverErr("focus "+role, err)
	}
	if err := drv.Type(ctx, h, text, TypeOptions{PerCharDelay: s.pacer.PerChar()}); err != nil {
		return driverErr("type "+role, err)
	}
	return nil
}

func (s *CredentialSubmitter) ready(ctx context.Context, drv PageDriver, role string, d Descriptor) (ElementHandle, error) {
	h, ok, err := visible(ctx, drv, d)
	if err != nil {
		return nil, err
	}
	if ok {
		ok, err = drv.IsEnabled(ctx, h)
		if err != nil {
			return nil, driverErr("enabled "+role, err)
		}
	}
	if !ok {
		return nil, &PreconditionError{Reason: FieldNotReady, Field: role}
	}
	return h, nil
}
