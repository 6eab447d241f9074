package core

type DBUser interface {
	ID() int
	Name() string // can be an email address
	Admin() bool  // grants the workflow admin override
}

type UserDB interface {
	InsertUser(name string) (DBUser, error)
	GetUser(id int) (DBUser, error)
	GetUserByName(name string) (DBUser, error)
	GetAllUsers(limit, offset int) ([]DBUser, error)
	LoginUser(name, password string) (DBUser, error)
	SetPassword(u DBUser, password string) error
	SetAdmin(u DBUser, admin bool) error
}

// An Actor is the identity a state-changing operation runs as. Admin is the
// administrative override capability, it is supplied by the caller (resolved
// from the user record at login), never computed inside the core.
type Actor struct {
	UserID int
	Admin  bool
}

// ActorFor builds an Actor from a user record.
func ActorFor(u DBUser) Actor {
	return Actor{UserID: u.ID(), Admin: u.Admin()}
}
