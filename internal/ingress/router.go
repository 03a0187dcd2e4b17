package ingress

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	loanerrors "github.com/cschwartz85032/loanserve-sub010/internal/errors"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/mlog"
)

const maxWebhookBodyBytes = 1 << 20

// Router dispatches /webhooks/<provider> POSTs to the matching Provider and
// Handler, grounded on a plain net/http ServeHTTP dispatch rather than the
// teacher's gofiber stack (dropped — see SPEC_FULL.md).
type Router struct {
	Handler   *Handler
	Providers map[string]Provider
	Logger    mlog.Logger

	// SignatureHeader and TimestampHeader name the request headers each
	// provider's webhook carries; defaults are applied by NewRouter.
	SignatureHeader string
	TimestampHeader string
}

func NewRouter(handler *Handler, providers map[string]Provider, logger mlog.Logger) *Router {
	return &Router{
		Handler:         handler,
		Providers:       providers,
		Logger:          logger,
		SignatureHeader: "X-Signature",
		TimestampHeader: "X-Timestamp",
	}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/webhooks/")
	if name == "" || name == r.URL.Path {
		http.NotFound(w, r)
		return
	}

	provider, ok := rt.Providers[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	defer r.Body.Close()

	signature := r.Header.Get(rt.SignatureHeader)
	timestamp := r.Header.Get(rt.TimestampHeader)

	env, err := rt.Handler.HandleWebhook(r.Context(), provider, timestamp, body, signature)
	if err != nil {
		rt.Logger.Warnf("webhook rejected for provider %s: %v", name, err)

		var verr loanerrors.ValidationError
		if errors.As(err, &verr) {
			writeJSONError(w, http.StatusUnauthorized, err)
			return
		}

		writeJSONError(w, http.StatusInternalServerError, err)

		return
	}

	if env == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"message_id": env.MessageID})
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
