// Package core implements multi-step content-approval workflows: group-based
// permission chains resolved per node or per content type, trackable workflow
// instances with one task per approval step, and the approve/reject/cancel
// state machine that advances them.
//
// The content tree, the acting user's identity and the application of an
// approved action are collaborators, they enter through the NodeStore, Actor
// and Materializer types. Storage is behind per-entity interfaces, see the
// sqldb and memdb packages for implementations.
package core

import (
	"log"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
)

type CoreDB struct {
	GroupDB
	UserDB
	ConfigDB
	InstanceDB
	Nodes          NodeStore
	Materializer   Materializer
	Notifier       Notifier
	SessionManager *scs.SessionManager

	locks lockTable
}

func (c *CoreDB) Init(sessionStore scs.Store, cookiePath string) error {

	if c.Notifier == nil {
		c.Notifier = LogNotifier{Printf: log.Printf}
	}
	if c.Materializer == nil {
		c.Materializer = noopMaterializer{}
	}

	c.SessionManager = scs.New()
	c.SessionManager.Store = sessionStore
	c.SessionManager.Cookie.Path = cookiePath + "/"
	c.SessionManager.Cookie.Persist = false
	c.SessionManager.Cookie.SameSite = http.SameSiteLaxMode
	c.SessionManager.Cookie.Secure = false // else running on localhost or behind a http proxy fails
	c.SessionManager.IdleTimeout = 12 * time.Hour
	c.SessionManager.Lifetime = 720 * time.Hour

	return nil
}

// noopMaterializer is the default Materializer. Deployments that publish
// content themselves replace it.
type noopMaterializer struct{}

func (noopMaterializer) ApplyAction(nodeID int, action ActionType, scheduled *time.Time) error {
	return nil
}
