package handlers

import (
	"net/http"

	"github.com/vango-go/voice-relay/pkg/core"
	"github.com/vango-go/voice-relay/pkg/gateway/apierror"
	"github.com/vango-go/voice-relay/pkg/gateway/mw"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	apierror.WriteError(w, &core.Error{Type: core.ErrNotFound, Message: "not found"}, reqID)
}
