package api

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/askwhyharsh/nearcontacts/pkg/errors"
)

type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorData `json:"error,omitempty"`
}

type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func SuccessResponse(data any) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

func ErrorResponse(message, code string) Response {
	return Response{
		Success: false,
		Error: &ErrorData{
			Message: message,
			Code:    code,
		},
	}
}

// respondError writes the classified error envelope.
func respondError(c *gin.Context, err error) {
	appErr := apperrors.Classify(err)
	c.JSON(appErr.StatusCode, ErrorResponse(appErr.Message, appErr.Code))
}
