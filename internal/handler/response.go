package handler

import (
	"strconv"

	"scancodes/pkg/payment"

	"github.com/gin-gonic/gin"
)

// respondError writes err using its public message and mapped status.
func respondError(c *gin.Context, err error) {
	c.JSON(payment.HTTPStatus(err), gin.H{"status": "error", "message": payment.PublicMessage(err)})
}

func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
