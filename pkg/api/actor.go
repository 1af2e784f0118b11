package api

import (
	"net/http"
	"strconv"

	"github.com/fieldvine/fieldvine/pkg/audit"
)

// Actor attribution headers. Upstream authentication middleware is expected
// to set these; absent headers are attributed to anonymous staff.
const (
	ActorTypeHeader = "X-Actor-Type"
	ActorIDHeader   = "X-Actor-ID"
)

// actorFromRequest resolves the acting identity from request headers
func actorFromRequest(r *http.Request) audit.Actor {
	actor := audit.Actor{Type: audit.ActorStaff}

	switch r.Header.Get(ActorTypeHeader) {
	case string(audit.ActorCustomer):
		actor.Type = audit.ActorCustomer
	case string(audit.ActorSystem):
		actor.Type = audit.ActorSystem
	}

	if raw := r.Header.Get(ActorIDHeader); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			actor.ID = &id
		}
	}
	return actor
}
