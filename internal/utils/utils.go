package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPerPage = 50
	MaxPerPage     = 200
)

// GetPaginationParams reads page and perPage from the query string. The
// snake_case per_page is accepted as well.
func GetPaginationParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	raw := c.Query("perPage")
	if raw == "" {
		raw = c.DefaultQuery("per_page", strconv.Itoa(DefaultPerPage))
	}
	perPage, _ := strconv.Atoi(raw)

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > MaxPerPage {
		perPage = DefaultPerPage
	}

	return page, perPage
}

// TotalPages rounds up.
func TotalPages(total int64, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}

// Respond writes the {data, message} envelope.
func Respond(c *gin.Context, status int, data any, message string) {
	body := gin.H{"data": data}
	if message != "" {
		body["message"] = message
	}
	c.JSON(status, body)
}

// Message writes an envelope without data.
func Message(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"message": message})
}
