package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/loqalabs/loqa-listen/internal/bus"
	"github.com/loqalabs/loqa-listen/internal/config"
	"github.com/loqalabs/loqa-listen/internal/protocol"
)

// EnvStatusKey is consulted on every query by the env authorizer.
const EnvStatusKey = "LOQA_SPEECH_AUTHORIZATION"

// Authorizer asks the platform speech service for access.
type Authorizer interface {
	Authorize(ctx context.Context) (Status, error)
}

type StaticAuthorizer struct {
	Status Status
}

func (a StaticAuthorizer) Authorize(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return NotDetermined, err
	}
	return a.Status, nil
}

// EnvAuthorizer reads the status from the environment at query time so that
// an operator can grant access and the caller can simply ask again.
type EnvAuthorizer struct {
	Key      string
	Fallback Status
}

func (a EnvAuthorizer) Authorize(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return NotDetermined, err
	}
	key := a.Key
	if key == "" {
		key = EnvStatusKey
	}
	v, ok := os.LookupEnv(key)
	if !ok {
		return a.Fallback, nil
	}
	return ParseStatus(v)
}

// BusAuthorizer delegates the decision to whoever answers on the bus.
type BusAuthorizer struct {
	bus     *bus.Client
	timeout time.Duration
}

func NewBusAuthorizer(busClient *bus.Client, timeout time.Duration) (*BusAuthorizer, error) {
	if busClient == nil {
		return nil, errors.New("bus authorizer requires a bus connection")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &BusAuthorizer{bus: busClient, timeout: timeout}, nil
}

func (a *BusAuthorizer) Authorize(ctx context.Context) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	var reply protocol.AuthorizationReply
	if err := a.bus.RequestJSON(ctx, protocol.SubjectAuthorization, protocol.AuthorizationRequest{Service: "speech"}, &reply); err != nil {
		return NotDetermined, err
	}
	return ParseStatus(reply.Status)
}

func NewAuthorizer(cfg config.AuthorizationConfig, busClient *bus.Client, log *slog.Logger) (Authorizer, error) {
	status, err := ParseStatus(cfg.Status)
	if err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case "", "static":
		return StaticAuthorizer{Status: status}, nil
	case "env":
		return EnvAuthorizer{Key: EnvStatusKey, Fallback: status}, nil
	case "bus":
		log.Debug("authorization delegated to bus", slog.String("subject", protocol.SubjectAuthorization))
		return NewBusAuthorizer(busClient, time.Duration(cfg.TimeoutMS)*time.Millisecond)
	default:
		return nil, fmt.Errorf("unsupported authorization mode %q", cfg.Mode)
	}
}
