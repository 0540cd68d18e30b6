package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"primetrade-api/domain"
)

const healthTimeout = 2 * time.Second

var errInvalidBody = errors.New("invalid request body")

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Register wires up all API routes on the provided Echo instance. health may
// be nil.
func Register(e *echo.Echo, tasks domain.TaskService, users domain.UserService, auth Authenticator, health HealthChecker, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	e.JSONSerializer = SonicSerializer{}
	e.HTTPErrorHandler = HTTPErrorHandler(logger)
	e.Use(RequestMetrics(logger))
	e.Use(GzipRequestMiddleware())

	guard := Guard(auth, logger)
	th := taskHandlers{svc: tasks, logger: logger}
	uh := userHandlers{svc: users, logger: logger}

	g := e.Group("/api")
	g.GET("/health", healthz(health, logger))

	ag := g.Group("/auth")
	ag.POST("/signup", uh.signup)
	ag.POST("/login", uh.login)
	ag.GET("/profile", uh.profile, guard)
	ag.PUT("/profile", uh.updateProfile, guard)

	tg := g.Group("/tasks", guard)
	tg.GET("", th.list)
	tg.POST("", th.create)
	tg.GET("/:id", th.get)
	tg.PUT("/:id", th.update)
	tg.DELETE("/:id", th.delete)
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func healthz(health HealthChecker, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if health != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
			defer cancel()
			if err := health.Ping(ctx); err != nil {
				logger.WithError(err).Warn("health check failed")
				return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "ERROR", Message: "Database unavailable"})
			}
		}
		return c.JSON(http.StatusOK, healthResponse{Status: "OK", Message: "Server is running"})
	}
}

// decodeBody reads a JSON or urlencoded body into v. An empty body leaves v
// untouched. Malformed bodies yield errInvalidBody; transport errors such as
// an exceeded body limit are returned as is.
func decodeBody(c echo.Context, v any) error {
	req := c.Request()
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationForm) {
		form, err := c.FormParams()
		if err != nil {
			return passHTTPError(err)
		}
		fields := make(map[string]string, len(form))
		for k, vs := range form {
			if len(vs) > 0 {
				fields[k] = vs[0]
			}
		}
		raw, err := sonic.ConfigStd.Marshal(fields)
		if err != nil {
			return err
		}
		if err := sonic.ConfigStd.Unmarshal(raw, v); err != nil {
			return errInvalidBody
		}
		return nil
	}

	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return passHTTPError(err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	req.Body = io.NopCloser(bytes.NewReader(raw))
	if err := c.Echo().JSONSerializer.Deserialize(c, v); err != nil {
		return errInvalidBody
	}
	return nil
}

func passHTTPError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code != http.StatusBadRequest {
		return err
	}
	return errInvalidBody
}

// bodyError renders a decodeBody failure.
func bodyError(c echo.Context, err error) error {
	if errors.Is(err, errInvalidBody) {
		metricsFrom(c).SetErrorStage("decode")
		return fail(c, http.StatusBadRequest, "Invalid request body")
	}
	return err
}
