package utils

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yourorg/coinscope/internal/model"
)

// ParseChartPeriod reads the days query parameter. A missing value yields
// model.DefaultChartPeriod; anything outside model.ChartPeriods is an error.
func ParseChartPeriod(c *gin.Context) (int, error) {
	raw := c.Query("days")
	if raw == "" {
		return model.DefaultChartPeriod, nil
	}

	days, err := strconv.Atoi(raw)
	if err != nil || !model.IsChartPeriod(days) {
		return 0, fmt.Errorf("days must be one of %v", model.ChartPeriods)
	}
	return days, nil
}

// SendErrorResponse sends a standardized error response
func SendErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{"error": message})
}

// AbortWithError sends a standardized error response and stops the handler chain
func AbortWithError(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, gin.H{"error": message})
}
