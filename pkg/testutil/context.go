package testutil

import (
	"net/http"

	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	"github.com/airalab/xcm-robobank-prototype/pkg/requestcontext"
)

// WithAccount marks the request as authenticated by account, the way the
// auth middleware would.
func WithAccount(req *http.Request, account string) *http.Request {
	if account == "" {
		return req
	}
	return req.WithContext(requestcontext.WithAccount(req.Context(), domain.AccountID(account)))
}
