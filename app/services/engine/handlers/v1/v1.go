// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/votelabs/voteledger/app/services/engine/handlers/v1/private"
	"github.com/votelabs/voteledger/app/services/engine/handlers/v1/public"
	"github.com/votelabs/voteledger/foundation/events"
	"github.com/votelabs/voteledger/foundation/ledger/identity"
	"github.com/votelabs/voteledger/foundation/ledger/state"
	"github.com/votelabs/voteledger/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log    *zap.SugaredLogger
	State  *state.State
	Issuer *identity.Issuer
	Evts   *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		Evts:  cfg.Evts,
		WS:    websocket.Upgrader{},
	}

	app.Handle(http.MethodPost, version, "/ballot/submit", pbl.SubmitBallot)
	app.Handle(http.MethodGet, version, "/election", pbl.Election)
	app.Handle(http.MethodGet, version, "/tally", pbl.Tally)
	app.Handle(http.MethodGet, version, "/tally/audited", pbl.TallyAudited)
	app.Handle(http.MethodGet, version, "/mempool", pbl.Mempool)
	app.Handle(http.MethodGet, version, "/blocks/list/:from", pbl.BlocksList)
	app.Handle(http.MethodGet, version, "/events", pbl.Events)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:    cfg.Log,
		State:  cfg.State,
		Issuer: cfg.Issuer,
	}

	app.Handle(http.MethodPost, version, "/token/issue", prv.IssueToken)
	app.Handle(http.MethodGet, version, "/chain/verify", prv.VerifyChain)
	app.Handle(http.MethodGet, version, "/participation", prv.Participation)
	app.Handle(http.MethodPost, version, "/chain/truncate", prv.Truncate)
	app.Handle(http.MethodPost, version, "/records/export", prv.ExportRecords)
}
