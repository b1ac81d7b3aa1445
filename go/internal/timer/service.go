package timer

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/chronicle/go/internal/auth"
	"github.com/mcdev12/chronicle/go/internal/models"
	"github.com/rs/zerolog/log"
)

// TimerServiceName is the fully-qualified name of the timer RPC service
const TimerServiceName = "chronicle.timer.v1.TimerService"

// Procedure paths for the timer RPC service
const (
	StartTimerProcedure       = "/" + TimerServiceName + "/StartTimer"
	PauseTimerProcedure       = "/" + TimerServiceName + "/PauseTimer"
	ResumeTimerProcedure      = "/" + TimerServiceName + "/ResumeTimer"
	CompleteTimerProcedure    = "/" + TimerServiceName + "/CompleteTimer"
	CancelTimerProcedure      = "/" + TimerServiceName + "/CancelTimer"
	GetTimerProcedure         = "/" + TimerServiceName + "/GetTimer"
	ListActiveTimersProcedure = "/" + TimerServiceName + "/ListActiveTimers"
)

// TimerApp defines what the service layer needs from the timer application
type TimerApp interface {
	StartTimer(ctx context.Context, userID string, req StartTimerRequest) (*models.TimerSession, error)
	PauseTimer(ctx context.Context, userID string, id uuid.UUID) (*models.TimerSession, error)
	ResumeTimer(ctx context.Context, userID string, id uuid.UUID) (*models.TimerSession, error)
	CompleteTimer(ctx context.Context, userID string, id uuid.UUID) (*CompleteResult, error)
	CancelTimer(ctx context.Context, userID string, id uuid.UUID) error
	GetTimer(ctx context.Context, userID string, id uuid.UUID) (*models.TimerSession, error)
	GetLiveTimer(ctx context.Context, userID string, id uuid.UUID) (*models.TimerSession, error)
	ListActiveTimers(ctx context.Context, userID string) ([]*models.TimerSession, error)
}

// Service implements the timer RPC service
type Service struct {
	app TimerApp
}

// NewService creates a new timer RPC service
func NewService(app TimerApp) *Service {
	return &Service{
		app: app,
	}
}

// NewTimerServiceHandler builds an HTTP handler serving every timer procedure.
// It returns the path prefix to mount the handler on.
func NewTimerServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(StartTimerProcedure, connect.NewUnaryHandler(StartTimerProcedure, svc.StartTimer, opts...))
	mux.Handle(PauseTimerProcedure, connect.NewUnaryHandler(PauseTimerProcedure, svc.PauseTimer, opts...))
	mux.Handle(ResumeTimerProcedure, connect.NewUnaryHandler(ResumeTimerProcedure, svc.ResumeTimer, opts...))
	mux.Handle(CompleteTimerProcedure, connect.NewUnaryHandler(CompleteTimerProcedure, svc.CompleteTimer, opts...))
	mux.Handle(CancelTimerProcedure, connect.NewUnaryHandler(CancelTimerProcedure, svc.CancelTimer, opts...))
	mux.Handle(GetTimerProcedure, connect.NewUnaryHandler(GetTimerProcedure, svc.GetTimer, opts...))
	mux.Handle(ListActiveTimersProcedure, connect.NewUnaryHandler(ListActiveTimersProcedure, svc.ListActiveTimers, opts...))

	return "/" + TimerServiceName + "/", mux
}

// StartTimer starts a new timer for the caller
func (s *Service) StartTimer(ctx context.Context, req *connect.Request[StartTimerRequest]) (*connect.Response[TimerResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	timer, err := s.app.StartTimer(ctx, userID, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&TimerResponse{Data: timer}), nil
}

// PauseTimer pauses a running timer
func (s *Service) PauseTimer(ctx context.Context, req *connect.Request[TimerIDRequest]) (*connect.Response[TimerResponse], error) {
	userID, id, err := callerAndTimer(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}

	timer, err := s.app.PauseTimer(ctx, userID, id)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&TimerResponse{Data: timer}), nil
}

// ResumeTimer resumes a paused timer
func (s *Service) ResumeTimer(ctx context.Context, req *connect.Request[TimerIDRequest]) (*connect.Response[TimerResponse], error) {
	userID, id, err := callerAndTimer(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}

	timer, err := s.app.ResumeTimer(ctx, userID, id)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&TimerResponse{Data: timer}), nil
}

// CompleteTimer completes a timer and returns the entry it produced
func (s *Service) CompleteTimer(ctx context.Context, req *connect.Request[TimerIDRequest]) (*connect.Response[CompleteTimerResponse], error) {
	userID, id, err := callerAndTimer(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}

	result, err := s.app.CompleteTimer(ctx, userID, id)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&CompleteTimerResponse{Data: result}), nil
}

// CancelTimer discards a timer
func (s *Service) CancelTimer(ctx context.Context, req *connect.Request[TimerIDRequest]) (*connect.Response[SuccessResponse], error) {
	userID, id, err := callerAndTimer(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}

	if err := s.app.CancelTimer(ctx, userID, id); err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&SuccessResponse{Success: true}), nil
}

// GetTimer returns one of the caller's timers
func (s *Service) GetTimer(ctx context.Context, req *connect.Request[GetTimerRequest]) (*connect.Response[TimerResponse], error) {
	userID, id, err := callerAndTimer(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}

	var timer *models.TimerSession
	if req.Msg.Live {
		timer, err = s.app.GetLiveTimer(ctx, userID, id)
	} else {
		timer, err = s.app.GetTimer(ctx, userID, id)
	}
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&TimerResponse{Data: timer}), nil
}

// ListActiveTimers returns the caller's running and paused timers
func (s *Service) ListActiveTimers(ctx context.Context, _ *connect.Request[ListActiveTimersRequest]) (*connect.Response[TimerListResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	timers, err := s.app.ListActiveTimers(ctx, userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&TimerListResponse{Data: timers}), nil
}

func callerID(ctx context.Context) (string, error) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return "", connect.NewError(connect.CodeUnauthenticated, errors.New("missing user identity"))
	}
	return userID, nil
}

func callerAndTimer(ctx context.Context, rawID string) (string, uuid.UUID, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return "", uuid.Nil, err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return "", uuid.Nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return userID, id, nil
}

// toConnectError maps domain errors onto Connect codes
func toConnectError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrInvalidTransition):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, ErrValidation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		log.Error().Err(err).Msg("timer request failed")
		return connect.NewError(connect.CodeInternal, err)
	}
}
