package permission

import (
	"context"
	"log/slog"
)

// Executor runs fn on the goroutine that owns the presentation state.
type Executor interface {
	Post(fn func()) error
}

type Presenter interface {
	SetButtonStatus(enabled bool)
	SetGuideMessage(text string)
}

// Gate asks for speech recognition access once per call and reflects the
// outcome on the presenter from the executor's goroutine.
type Gate struct {
	auth Authorizer
	exec Executor
	ui   Presenter
	log  *slog.Logger
}

func NewGate(auth Authorizer, exec Executor, ui Presenter, log *slog.Logger) *Gate {
	return &Gate{
		auth: auth,
		exec: exec,
		ui:   ui,
		log:  log.With(slog.String("component", "permission-gate")),
	}
}

// RequestAuthorization blocks until the authorizer answers and the presenter
// has been updated. A non-nil error accompanies every status but Authorized.
func (g *Gate) RequestAuthorization(ctx context.Context) (Status, error) {
	status, authErr := g.auth.Authorize(ctx)
	if authErr != nil {
		g.log.Warn("authorization request failed", slog.String("error", authErr.Error()))
		status = NotDetermined
		authErr = &AuthorizationError{Status: NotDetermined, Err: authErr}
	} else {
		authErr = status.Err()
	}
	g.log.Info("authorization resolved", slog.String("status", status.String()))

	applied := make(chan struct{})
	if err := g.exec.Post(func() {
		defer close(applied)
		g.apply(status)
	}); err != nil {
		return status, err
	}
	select {
	case <-applied:
	case <-ctx.Done():
		return status, ctx.Err()
	}
	return status, authErr
}

// Request runs RequestAuthorization in the background; done may be nil.
func (g *Gate) Request(ctx context.Context, done func(Status, error)) {
	go func() {
		status, err := g.RequestAuthorization(ctx)
		if done != nil {
			done(status, err)
		}
	}()
}

func (g *Gate) apply(status Status) {
	if status == Authorized {
		g.ui.SetButtonStatus(true)
		return
	}
	g.ui.SetButtonStatus(false)
	g.ui.SetGuideMessage(status.GuideMessage())
}
