package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	agencyContextKey = "agencyID"
	AgencyHeader     = "X-Agency-ID"
	agencyQuery      = "agency_id"
)

// Agency records the agency the caller is working for. A missing agency is not an
// error here; operations that need one refuse on their own.
func Agency() gin.HandlerFunc {
	return func(c *gin.Context) {
		agencyID := strings.TrimSpace(c.GetHeader(AgencyHeader))
		if agencyID == "" {
			agencyID = strings.TrimSpace(c.Query(agencyQuery))
		}
		if agencyID == "" {
			c.Next()
			return
		}

		principal, ok := MustPrincipal(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "missing principal")
			return
		}
		if !principal.HasAgency(agencyID) {
			abort(c, http.StatusForbidden, "agency not assigned to this user")
			return
		}

		c.Set(agencyContextKey, agencyID)
		c.Next()
	}
}
