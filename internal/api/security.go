package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/hivemarket/honeyshop/internal/domain/auth"
)

// APIKeyHeader carries the operator API key.
const APIKeyHeader = "X-API-Key"

// HashAPIKey computes the peppered HMAC-SHA256 digest of a raw API key. Only
// digests are stored, so a leaked database does not leak usable keys.
func HashAPIKey(key string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// OperatorAuth returns a middleware that admits only requests carrying a
// registered operator API key.
func OperatorAuth(keys auth.Repository, pepper []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				respondError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			hash := HashAPIKey(key, pepper)
			info, err := keys.FindByHash(r.Context(), hash)
			if err != nil {
				if errors.Is(err, auth.ErrNotFound) {
					respondError(w, http.StatusUnauthorized, "invalid API key")
					return
				}
				zctx.From(r.Context()).Error("api key lookup failed", zap.Error(err))
				respondError(w, http.StatusInternalServerError, "internal error, retry later")
				return
			}
			if subtle.ConstantTimeCompare([]byte(info.KeyHash), []byte(hash)) != 1 {
				respondError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
