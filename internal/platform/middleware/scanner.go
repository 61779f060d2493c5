package middleware

import (
	"net/http"

	"github.com/mssola/useragent"

	"pharmatrace/pkg/requestcontext"
)

// ScannerDevice classifies the User-Agent of a verification scan into a
// coarse device class ("mobile", "desktop", "bot") for the verification
// metrics. Informational only; nothing gates on it.
func ScannerDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := useragent.New(r.UserAgent())

		device := "desktop"
		switch {
		case ua.Bot():
			device = "bot"
		case ua.Mobile():
			device = "mobile"
		}

		ctx := requestcontext.WithScannerDevice(r.Context(), device)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
