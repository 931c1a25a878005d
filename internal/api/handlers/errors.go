// Package handlers holds the HTTP handlers for the ledgerlens API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/ledgerlens/ledgerlens/internal/api/response"
	"github.com/ledgerlens/ledgerlens/internal/lenserrors"
	"github.com/ledgerlens/ledgerlens/internal/service"
)

// respondServiceError maps a service error to a problem response. Validation
// errors surface their own message; everything else gets the caller-supplied
// detail so raw provider and store text never reaches clients.
func respondServiceError(w http.ResponseWriter, err error, internalDetail string) {
	var validationErr *lenserrors.ValidationError
	if errors.As(err, &validationErr) {
		response.RespondBadRequest(w, validationErr.Error())

		return
	}

	var notFoundErr *lenserrors.NotFoundError
	if errors.As(err, &notFoundErr) {
		response.RespondNotFound(w, notFoundErr.Error())

		return
	}

	var providerErr *lenserrors.ProviderError
	if errors.As(err, &providerErr) {
		status := http.StatusBadGateway
		title := "Embedding Provider Unavailable"

		if providerErr.RateLimited {
			status = http.StatusTooManyRequests
			title = "Embedding Provider Rate Limited"
		}

		response.RespondProblem(w, status, title, internalDetail, providerErr.Kind())

		return
	}

	var storeErr *lenserrors.StoreError
	if errors.As(err, &storeErr) {
		response.RespondProblem(w, http.StatusServiceUnavailable,
			"Store Unavailable", internalDetail, storeErr.Kind())

		return
	}

	// embedding failed but the cause carried no provider classification
	if errors.Is(err, service.ErrEmbeddingUnavailable) {
		response.RespondProblem(w, http.StatusBadGateway,
			"Embedding Provider Unavailable", internalDetail, lenserrors.KindProviderUnavailable)

		return
	}

	response.RespondInternalServerError(w, internalDetail)
}
