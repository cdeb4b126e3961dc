package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/atelier/internal/domain/auth"
)

// authedFunc is a handler that runs with a verified identity.
type authedFunc func(w http.ResponseWriter, r *http.Request, id *auth.Identity)

// authenticate resolves the bearer token to an identity, responding 401 when
// it is missing or rejected.
func (h *Handler) authenticate(next authedFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		id, err := h.verifier.Verify(r.Context(), token)
		if err != nil {
			zctx.From(r.Context()).Debug("Bearer token rejected", zap.Error(err))
			writeError(w, http.StatusUnauthorized, auth.ErrUnauthorized.Error())
			return
		}

		ctx := auth.WithIdentity(r.Context(), id)
		ctx = zctx.With(ctx, zap.String("user_id", id.ID))
		next(w, r.WithContext(ctx), id)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
