package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yeremiapane/neighborhood-grub/services"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&services.Error{Op: "place_bid", Kind: services.ErrValidationFailed}, http.StatusUnprocessableEntity},
		{&services.Error{Op: "accept_bid", Kind: services.ErrInsufficientFunds}, http.StatusPaymentRequired},
		{&services.Error{Op: "accept_bid", Kind: services.ErrConflict}, http.StatusConflict},
		{&services.Error{Op: "cancel_order", Kind: services.ErrInvalidTransition}, http.StatusConflict},
		{&services.Error{Op: "get_post", Kind: services.ErrNotFound}, http.StatusNotFound},
		{&services.Error{Op: "cancel_order", Kind: services.ErrForbidden}, http.StatusForbidden},
		{fmt.Errorf("wrapped: %w", &services.Error{Kind: services.ErrNotFound}), http.StatusNotFound},
		{errors.New("database is locked"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
