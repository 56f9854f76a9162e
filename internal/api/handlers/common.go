package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/launchkit/internal/api/middleware"
	"github.com/yoockh/launchkit/internal/utils"
)

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}

	var ae *utils.AppError
	if errors.As(err, &ae) {
		c.JSON(status, APIError{
			Code:    ae.Code,
			Message: utils.SafeMessage(err),
		})
		return
	}

	code := utils.CodeInternal
	if status == http.StatusNotFound {
		code = utils.CodeNotFound
	}
	c.JSON(status, APIError{Code: code, Message: http.StatusText(status)})
}

func badRequest(c *gin.Context, op string, err error) {
	writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
}

func requireUserID(c *gin.Context) (string, bool) {
	if s := c.GetString(middleware.CtxUserID); s != "" {
		return s, true
	}

	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return "", false
}
