package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"primetrade-api/domain"
)

type userHandlers struct {
	svc    domain.UserService
	logger *log.Logger
}

type authPayload struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"token"`
}

func (h userHandlers) signup(c echo.Context) error {
	var in domain.SignupInput
	if err := decodeBody(c, &in); err != nil {
		return bodyError(c, err)
	}
	u, token, err := h.svc.Signup(c.Request().Context(), in)
	if err != nil {
		metricsFrom(c).SetErrorStage("signup")
		return writeError(c, h.logger, errorMessages{internal: "Server error during signup"}, err)
	}
	return ok(c, http.StatusCreated, authPayload{ID: u.ID, Name: u.Name, Email: u.Email, Token: token})
}

func (h userHandlers) login(c echo.Context) error {
	var in domain.LoginInput
	if err := decodeBody(c, &in); err != nil {
		return bodyError(c, err)
	}
	u, token, err := h.svc.Login(c.Request().Context(), in)
	if err != nil {
		metricsFrom(c).SetErrorStage("login")
		return writeError(c, h.logger, errorMessages{internal: "Server error during login"}, err)
	}
	return ok(c, http.StatusOK, authPayload{ID: u.ID, Name: u.Name, Email: u.Email, Token: token})
}

func (h userHandlers) profile(c echo.Context) error {
	msgs := errorMessages{notFound: "User not found", internal: "Server error fetching profile"}
	id, err := identity(c)
	if err != nil {
		return writeError(c, h.logger, msgs, err)
	}
	u, err := h.svc.Profile(c.Request().Context(), id.UserID)
	if err != nil {
		return writeError(c, h.logger, msgs, err)
	}
	return ok(c, http.StatusOK, u)
}

func (h userHandlers) updateProfile(c echo.Context) error {
	msgs := errorMessages{notFound: "User not found", internal: "Server error updating profile"}
	id, err := identity(c)
	if err != nil {
		return writeError(c, h.logger, msgs, err)
	}
	var in domain.ProfileInput
	if err := decodeBody(c, &in); err != nil {
		return bodyError(c, err)
	}
	u, err := h.svc.UpdateProfile(c.Request().Context(), id.UserID, in)
	if err != nil {
		return writeError(c, h.logger, msgs, err)
	}
	return ok(c, http.StatusOK, u)
}
