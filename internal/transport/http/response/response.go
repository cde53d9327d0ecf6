package response

import "github.com/gin-gonic/gin"

const (
	CodeBadRequest             = 40000
	CodeUnauthorized           = 40100
	CodeForbidden              = 40300
	CodeSessionNotFound        = 40401
	CodeSupportMessageNotFound = 40402
	CodeInternalServer         = 50000
	CodeUnavailable            = 50300
)

type ErrorBody struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, data)
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, data)
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, ErrorBody{
		Error: message,
		Code:  code,
	})
}

// Abort writes an error body and stops the handler chain.
func Abort(c *gin.Context, httpStatus, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, ErrorBody{
		Error: message,
		Code:  code,
	})
}
