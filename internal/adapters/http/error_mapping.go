package httpadapter

import (
	"net/http"

	"github.com/trustdoc/custody/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrValidation):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrForbidden), domain.IsKind(err, domain.ErrLedgerUnauthorized):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrNotFound), domain.IsKind(err, domain.ErrLedgerInvalidID):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrDuplicateHash),
		domain.IsKind(err, domain.ErrLedgerAlreadyDeleted),
		domain.IsKind(err, domain.ErrLedgerAlreadyActive),
		domain.IsKind(err, domain.ErrLedgerHashClaimed):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrLedgerSizeRange):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrHashTimeout), domain.IsKind(err, domain.ErrLedgerTimeout):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrHashProcess),
		domain.IsKind(err, domain.ErrHashFormat),
		domain.IsKind(err, domain.ErrContentStore),
		domain.IsKind(err, domain.ErrMetadataPersist):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
