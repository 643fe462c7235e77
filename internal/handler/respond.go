package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketplace/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// respondError writes err using the domain taxonomy. Unclassified errors are logged and
// reported without their message.
func respondError(c *gin.Context, log zerolog.Logger, err error) {
	status := domain.HTTPStatus(err)
	code := domain.ErrorCode(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error", "code": code})
		return
	}
	body := gin.H{"error": err.Error(), "code": code}
	var verr *domain.ValidationError
	if errors.As(err, &verr) && verr.Field != "" {
		body["field"] = verr.Field
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": domain.CodeRequired})
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(domain.DefaultPageSize)))
	page, size, _ = domain.Paginate(page, size)
	return page, size
}

// timeParam accepts RFC 3339 timestamps and plain dates.
func timeParam(c *gin.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, domain.NewValidationError(domain.CodeInvalidPeriod, name, "%s must be a date or RFC 3339 timestamp", name)
}

func paged(items interface{}, total int64, page, size int) gin.H {
	return gin.H{"items": items, "total": total, "page": page, "page_size": size}
}
