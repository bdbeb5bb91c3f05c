package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/mafunzo/mafunzo/core"
	"github.com/mafunzo/mafunzo/core/enrollment"
	"github.com/mafunzo/mafunzo/core/program"
	"github.com/mafunzo/mafunzo/core/referral"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		DisableReqLogs bool

		ReferralSvc   *referral.Service
		ProgramSvc    *program.Service
		EnrollmentSvc *enrollment.Service
	}

	Server struct {
		deps      ServerDeps
		app       *echo.Echo
		jwtConfig middleware.JWTConfig

		errChan      chan error
		shutdownChan chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:         deps,
		app:          echo.New(),
		jwtConfig:    newJWTConfig(deps.Conf),
		errChan:      make(chan error, 1),
		shutdownChan: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdownChan, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.deps.Conf.Debug || s.deps.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.signalShutdown)
	s.app.Debug = s.deps.Conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.jwtConfig)

	registerReferralAPI(v1, jwt, s.deps.ReferralSvc)
	registerProgramAPI(v1, jwt, s.deps.ProgramSvc)
	registerEnrollmentAPI(v1, jwt, s.deps.EnrollmentSvc)
}

func (s *Server) Start() {
	s.errChan <- s.app.Start(s.deps.Conf.Server.Address())
}

func (s *Server) Errors() <-chan error             { return s.errChan }
func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdownChan }

// signalShutdown is used by the error handler to trigger a graceful
// shutdown when an integrity issue is caught.
func (s *Server) signalShutdown() {
	s.shutdownChan <- syscall.SIGTERM
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Mafunzo API!")
}
