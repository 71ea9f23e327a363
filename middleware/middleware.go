package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	// Run IDs are a short prefix plus an order ID or UUID.
	runIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

	// User and order identifiers are opaque slugs.
	identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)
)

// BasicAuth returns a middleware that implements HTTP Basic Authentication
func BasicAuth() gin.HandlerFunc {
	username := os.Getenv("AUTH_USERNAME")
	password := os.Getenv("AUTH_PASSWORD")

	return func(c *gin.Context) {
		// Skip auth if credentials not configured
		if username == "" || password == "" {
			c.Next()
			return
		}

		user, pass, hasAuth := c.Request.BasicAuth()
		if !hasAuth {
			c.Header("WWW-Authenticate", `Basic realm="Copy Engine"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		// Use constant-time comparison to prevent timing attacks
		usernameMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passwordMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1

		if !usernameMatch || !passwordMatch {
			c.Header("WWW-Authenticate", `Basic realm="Copy Engine"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		c.Next()
	}
}

// ValidateRunID validates the runId path parameter on workflow routes.
func ValidateRunID() gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := c.Param("runId")
		if runID == "" {
			c.Next()
			return
		}

		runID = strings.TrimSpace(runID)
		if !runIDRegex.MatchString(runID) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "Invalid run ID format",
			})
			return
		}

		c.Set("validatedRunID", runID)
		c.Next()
	}
}

// ValidateQueryParams validates common query parameters
func ValidateQueryParams() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Validate limit parameter
		if limitStr := c.Query("limit"); limitStr != "" {
			limit, err := strconv.Atoi(limitStr)
			if err != nil || limit < 1 || limit > 1000 {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error": "Invalid limit parameter. Must be a positive integer between 1 and 1000",
				})
				return
			}
		}

		// Validate user_id parameter
		if userID := c.Query("user_id"); userID != "" {
			if !identifierRegex.MatchString(strings.TrimSpace(userID)) {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error": "Invalid user_id parameter",
				})
				return
			}
		}

		c.Next()
	}
}

// IsValidIdentifier checks if a string is a well-formed user or order ID.
func IsValidIdentifier(id string) bool {
	return identifierRegex.MatchString(strings.TrimSpace(id))
}
