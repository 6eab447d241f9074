package main

import (
	"bytes"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/xo/dburl"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/kervik/signoff/api"
	"github.com/kervik/signoff/core"
	"github.com/kervik/signoff/sqldb"
	"github.com/kervik/signoff/sqldb/mysql"
	"github.com/kervik/signoff/sqldb/sqlite3"
)

func init() {
	log.SetFlags(0) // no log prefixes, on most systems systemd-journald adds them
}

func main() {

	var dbArg string // is in both FlagSets

	// default FlagSet

	var base = flag.String("base", "", "strip off this `prefix` from every HTTP request")
	flag.StringVar(&dbArg, "db", "sqlite3:signoff.sqlite3?_busy_timeout=10000&_journal=WAL&_sync=NORMAL&cache=shared", "sql database url, see github.com/xo/dburl")
	var listenAddr = flag.String("listen", "127.0.0.1:8080", "serve HTTP content at this `ip:port`")
	var settingsArg = flag.String("settings", "config/signoff.ini", "read settings from this `file`")

	// init FlagSet

	var initFlags = flag.NewFlagSet("init", flag.ExitOnError)

	initFlags.StringVar(&dbArg, "db", "sqlite3:signoff.sqlite3?_busy_timeout=10000&_journal=WAL&_sync=NORMAL&cache=shared", "sql database url, see github.com/xo/dburl") // copied from above
	var initInsert = initFlags.Bool("insert", false, "creates the given group or user")
	var initJoin = initFlags.Bool("join", false, "joins the given user to the given group")
	var initMakeAdmin = initFlags.Bool("make-admin", false, "gives the workflow admin override to the given user")
	var groupname = initFlags.String("group", "", "specifies a group `name`")
	var username = initFlags.String("user", "", "specifies a user `name`")

	if len(os.Args) > 1 && os.Args[1] == "init" {
		initFlags.Parse(os.Args[2:])
	} else {
		flag.Parse()
	}

	// database

	dbURL, err := dburl.Parse(dbArg)
	if err != nil {
		log.Printf("could not parse database url: %v", err)
		return
	}

	sqlDB, err := sql.Open(dbURL.Driver, dbURL.DSN)
	if err != nil {
		log.Printf("could not open sql database: %v", err)
		return
	}

	if err = sqlDB.Ping(); err != nil {
		log.Printf("could not ping sql database: %v", err)
		return
	}

	log.Printf("using database %s", dbURL.String())

	// base

	*base = strings.Trim(*base, "/")
	if *base != "" {
		*base = "/" + *base
	}

	// assemble stuff

	var sessionStore scs.Store
	switch dbURL.Driver {
	case "mysql":
		sessionStore = mysql.NewSessionStore(sqlDB)
	case "sqlite3":
		sessionStore = sqlite3.NewSessionStore(sqlDB)
	default:
		log.Printf("unknown database backend: %s", dbURL.Driver)
		return
	}

	db := &core.CoreDB{}
	db.GroupDB = sqldb.NewGroupDB(sqlDB)
	db.UserDB = sqldb.NewUserDB(sqlDB)
	db.ConfigDB = sqldb.NewConfigDB(sqlDB)
	db.InstanceDB = sqldb.NewInstanceDB(sqlDB)
	db.Nodes = sqldb.NewNodeStore(sqlDB)

	if err := db.Init(sessionStore, *base); err != nil {
		log.Println(err) // log.Fatalln would not run deferred functions
		return
	}

	defer func() {
		log.Println("closing database")
		sqlDB.Close()
	}()

	// init

	if initFlags.Parsed() {
		switch {
		case *initInsert:
			if *groupname != "" {
				insertGroup(db, *groupname)
			}
			if *username != "" {
				insertUser(db, *username)
			}
		case *initJoin:
			if *groupname != "" && *username != "" {
				join(db, *groupname, *username)
			}
		case *initMakeAdmin:
			if *username != "" {
				makeAdmin(db, *username)
			}
		}
		return
	}

	settings, err := core.LoadSettings(*settingsArg)
	if err != nil {
		log.Printf("could not read settings: %v", err)
		return
	}

	listen(db, settings, *listenAddr, *base)
}

func insertGroup(db *core.CoreDB, name string) {
	if _, err := db.CreateGroup(name); err != nil {
		log.Printf(`error creating group "%s": %v`, name, err)
	}
}

func insertUser(db *core.CoreDB, name string) {

	fmt.Printf("password for user %s: ", name)
	pass1, err := terminal.ReadPassword(0)
	fmt.Println()
	if err != nil {
		log.Printf("error reading password: %v", err)
		return
	}

	fmt.Printf("repeat password: ")
	pass2, err := terminal.ReadPassword(0)
	fmt.Println()
	if err != nil {
		log.Printf("error reading password: %v", err)
		return
	}

	if !bytes.Equal(pass1, pass2) {
		log.Printf("passwords don't match")
		return
	}

	user, err := db.InsertUser(name)
	if err != nil {
		log.Printf("error creating user %s: %v", name, err)
		return
	}

	if err := db.SetPassword(user, string(pass1)); err != nil {
		log.Printf("error setting password: %v", err)
		return
	}
}

func join(db *core.CoreDB, groupname string, username string) {

	group, err := db.GetGroupByName(groupname)
	if err != nil {
		log.Printf("error getting group %s: %v", groupname, err)
		return
	}

	user, err := db.GetUserByName(username)
	if err != nil {
		log.Printf("error getting user %s: %v", username, err)
		return
	}

	members, err := group.Members()
	if err != nil {
		log.Printf("error getting members: %v", err)
		return
	}

	var memberIDs = []int{user.ID()}
	for id := range members {
		if id != user.ID() {
			memberIDs = append(memberIDs, id)
		}
	}

	if _, err := db.SaveGroup(group.ID(), group.Name(), group.Alias(), group.Description(), memberIDs); err != nil {
		log.Printf("error joining: %v", err)
		return
	}
}

func makeAdmin(db *core.CoreDB, username string) {

	user, err := db.GetUserByName(username)
	if err != nil {
		log.Printf("error getting user %s: %v", username, err)
		return
	}

	if err := db.SetAdmin(user, true); err != nil {
		log.Printf("error giving admin override to user: %v", err)
		return
	}
}

func listen(db *core.CoreDB, settings core.Settings, addr string, base string) {

	var mux = http.NewServeMux()
	mux.Handle(base+"/", http.StripPrefix(base, api.NewRouter(db, settings.ExcludedNodeSet())))

	sigintChannel := make(chan os.Signal, 1)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Println(err)
		return
	}

	log.Printf("listening to %s", addr)

	httpSrv := &http.Server{
		Handler:      db.SessionManager.LoadAndSave(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := httpSrv.Serve(listener); err != nil {

			// don't panic, we want a graceful shutdown
			if err != http.ErrServerClosed {
				log.Printf("error listening: %v", err)
			}

			// ensure graceful shutdown
			sigintChannel <- os.Interrupt
		}
	}()

	// graceful shutdown

	signal.Notify(sigintChannel, os.Interrupt, syscall.SIGTERM) // SIGINT (Interrupt) or SIGTERM
	<-sigintChannel

	log.Println("shutting down")
	httpSrv.Close()
}
