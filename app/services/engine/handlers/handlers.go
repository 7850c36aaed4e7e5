// Package handlers manages the different versions of the API.
package handlers

import (
	"net/http"
	"os"

	v1 "github.com/votelabs/voteledger/app/services/engine/handlers/v1"
	"github.com/votelabs/voteledger/business/web/mid"
	"github.com/votelabs/voteledger/foundation/events"
	"github.com/votelabs/voteledger/foundation/ledger/identity"
	"github.com/votelabs/voteledger/foundation/ledger/state"
	"github.com/votelabs/voteledger/foundation/web"
	"go.uber.org/zap"
)

// MuxConfig contains all the mandatory systems required by handlers.
type MuxConfig struct {
	Shutdown chan os.Signal
	Log      *zap.SugaredLogger
	State    *state.State
	Issuer   *identity.Issuer
	Evts     *events.Events
}

// PublicMux constructs a http.Handler with all application routes defined
// for the client/ballot collaborator.
func PublicMux(cfg MuxConfig) http.Handler {

	// Construct the web.App which holds all routes as well as common
	// Middleware.
	app := web.NewApp(
		cfg.Shutdown,
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
		mid.Panics(),
		mid.Cors("*"),
	)

	// Load the public routes API for the given version.
	v1.PublicRoutes(app, v1.Config{
		Log:    cfg.Log,
		State:  cfg.State,
		Issuer: cfg.Issuer,
		Evts:   cfg.Evts,
	})

	return app
}

// PrivateMux constructs a http.Handler with all application routes defined
// for the registration/administration collaborator.
func PrivateMux(cfg MuxConfig) http.Handler {
	app := web.NewApp(
		cfg.Shutdown,
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
		mid.Panics(),
	)

	// Load the private routes API for the given version.
	v1.PrivateRoutes(app, v1.Config{
		Log:    cfg.Log,
		State:  cfg.State,
		Issuer: cfg.Issuer,
		Evts:   cfg.Evts,
	})

	return app
}
