package httpadapter

import (
	"net/http"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound), domain.IsKind(err, domain.ErrNoSession):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrNotReady):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrNotHydrated):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
