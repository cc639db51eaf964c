package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/classable/classable/internal/models"
	apperrors "github.com/classable/classable/pkg/errors"
	"github.com/classable/classable/pkg/response"
	"github.com/classable/classable/pkg/validator"
)

func init() {
	// Named rules for the request DTOs in this package.
	must(validator.RegisterEnum("invitekind",
		string(models.InviteKindTeacher),
		string(models.InviteKindStudent),
		string(models.InviteKindClass),
	))
	must(validator.RegisterEnum("track",
		string(models.TrackGeneral),
		string(models.TrackBusiness),
	))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// bindAndValidate binds the JSON body into target and runs struct
// validation, writing the error response itself on failure.
func bindAndValidate(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid request body"))
		return false
	}
	if err := validator.ValidateStruct(target); err != nil {
		response.Error(c, err)
		return false
	}
	return true
}
