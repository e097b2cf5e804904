package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"directstock/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFromError_ClassifiesDomainKinds(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"validation", domain.NewFieldError("quantity", "bad"), CodeValidation, http.StatusBadRequest},
		{"not found", domain.NewNotFound("bin", "b-1"), CodeNotFound, http.StatusNotFound},
		{"insufficient", domain.NewInsufficientStock("p", "b", decimal.NewFromInt(1), decimal.NewFromInt(2)), CodeInsufficientStock, http.StatusConflict},
		{"serial", domain.NewSerialConflict("SN-1", "status_mismatch", nil), CodeSerialStateConflict, http.StatusConflict},
		{"state", domain.NewInvalidState("goods_receipt", "r-1", domain.StatusCompleted, "complete"), CodeInvalidState, http.StatusConflict},
		{"recount", domain.NewRecountRequired("s-1", []string{"i-1"}), CodeRecountRequired, http.StatusConflict},
		{"conflict", domain.NewConflict("operation already in progress", nil), CodeConflict, http.StatusConflict},
		{"wrapped", fmt.Errorf("complete: %w", domain.NewNotFound("bin", "b-1")), CodeNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			std := FromError(tt.err)
			assert.Equal(t, tt.code, std.Code)
			assert.Equal(t, tt.status, std.HTTPStatus())
		})
	}
}

func TestFromError_HidesInfrastructureErrors(t *testing.T) {
	std := FromError(stderrors.New("pq: connection refused"))

	assert.Equal(t, CodeInternal, std.Code)
	assert.Equal(t, http.StatusInternalServerError, std.HTTPStatus())
	assert.NotContains(t, std.Message, "pq")
}

func TestFromError_KeepsDetails(t *testing.T) {
	std := FromError(domain.NewInsufficientStock("p-1", "b-1", decimal.NewFromInt(3), decimal.NewFromInt(5)))

	assert.Equal(t, "p-1", std.Details["product_id"])
	assert.Equal(t, "b-1", std.Details["bin_id"])
}

func TestFromError_PassesStandardErrorThrough(t *testing.T) {
	in := NewUnauthorized("missing token")

	assert.Same(t, in, FromError(in))
	assert.Equal(t, http.StatusUnauthorized, in.HTTPStatus())
}
