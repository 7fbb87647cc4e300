// apcore is a server framework for implementing an ActivityPub application.
// Copyright (C) 2019 Cory Slep
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package apcore

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/relaysocial/apcore/deliverer"
	"github.com/relaysocial/apcore/framework/nodeinfo"
	"github.com/relaysocial/apcore/queue"
	"github.com/relaysocial/apcore/receiver"
	"github.com/relaysocial/apcore/scheduler"
)

// Instance is what a host program supplies to wire the federation core
// against its own actor directory and object store. It plays the role
// apcore's Application/services interfaces used to play, narrowed to
// exactly what the federation pipeline needs: nothing about accounts,
// sessions, or the client API leaks through it.
type Instance struct {
	// ReceiverDeps wires receiver.Receive's Dependencies; the host resolves
	// signer keys and local-origin checks against its own actor table.
	ReceiverDeps receiver.Dependencies
	// NodeInfoStats answers NodeInfo's usage and preferences sections.
	NodeInfoStats nodeinfo.StatsProvider
	// Software identifies this instance to NodeInfo and the User-Agent.
	Software Software
}

type server struct {
	instance    Instance
	config      *config
	db          *sql.DB
	jobs        *queue.PostgresStore
	deliverer   *deliverer.Deliverer
	rateLimiter *deliverer.HostLimiter
	scheduler   *scheduler.Scheduler
	httpServer  *http.Server
	httpsServer *http.Server
	debug       bool
}

func newServer(configFileName string, instance Instance, debug bool) (s *server, err error) {
	var c *config
	c, err = loadConfigFile(configFileName, debug)
	if err != nil {
		return
	}

	var db *sql.DB
	db, err = openDatabase(c)
	if err != nil {
		return
	}

	dsn, err := postgresConnString(c.DatabaseConfig.PostgresConfig)
	if err != nil {
		return
	}
	var jobs *queue.PostgresStore
	jobs, err = queue.OpenPostgresStore(dsn)
	if err != nil {
		return
	}

	d := deliverer.New(fmt.Sprintf("%s (relaysocial/apcore)", instance.Software))
	d.Concurrency = c.FederationConfig.EgressConcurrency
	d.PrivateMode = c.FederationConfig.PrivateMode
	d.Log = func(format string, args ...interface{}) {
		ErrorLogger.Errorf(format, args...)
	}

	limiter := deliverer.NewHostLimiter(
		rate.Limit(c.ActivityPubConfig.OutboundRateLimitQPS),
		c.ActivityPubConfig.OutboundRateLimitBurst,
		time.Duration(c.ActivityPubConfig.OutboundRateLimitPrunePeriodSeconds)*time.Second,
		time.Duration(c.ActivityPubConfig.OutboundRateLimitPruneAgeSeconds)*time.Second,
	)
	d.RateLimiter = limiter

	sch := scheduler.New([]scheduler.Task{
		{
			Name:   "incoming-activity-queue",
			Period: 2 * time.Second,
			Run: func(ctx context.Context) error {
				return processIncomingQueue(ctx, jobs)
			},
		},
	}, ErrorLogger)

	h := newRouter(c, instance, jobs)

	httpsServer := &http.Server{
		Addr:         ":https",
		Handler:      h,
		ReadTimeout:  time.Duration(c.ServerConfig.HttpsReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(c.ServerConfig.HttpsWriteTimeoutSeconds) * time.Second,
		TLSConfig:    createTlsConfig(),
		TLSNextProto: make(map[string]func(*http.Server, *tls.Conn, http.Handler), 0),
	}
	httpServer := createRedirectServer(c)

	s = &server{
		instance:    instance,
		config:      c,
		db:          db,
		jobs:        jobs,
		deliverer:   d,
		rateLimiter: limiter,
		scheduler:   sch,
		httpServer:  httpServer,
		httpsServer: httpsServer,
		debug:       debug,
	}
	httpsServer.RegisterOnShutdown(s.onStop)
	return
}

// newRouter builds the HTTP route table. Actor/object/collection GET
// handlers and the WebFinger HTTP responder are out of scope (consumer
// collaborators per the Non-goals); the inbox and NodeInfo routes are
// wired directly against the federation-core packages.
func newRouter(c *config, instance Instance, jobs *queue.PostgresStore) http.Handler {
	r := mux.NewRouter()

	inbox := func(w http.ResponseWriter, req *http.Request) {
		handleInbox(w, req, instance, jobs)
	}
	r.HandleFunc("/inbox", inbox).Methods(http.MethodPost)
	r.HandleFunc("/users/{username}/inbox", inbox).Methods(http.MethodPost)

	for _, ph := range nodeinfo.GetNodeInfoHandlers(
		nodeinfo.Config{
			EnableNodeInfo:              c.NodeInfoConfig.EnableNodeInfo,
			EnableAnonymousStatsSharing: c.NodeInfoConfig.EnableAnonymousStatsSharing,
		},
		"https", c.ServerConfig.Host,
		instance.NodeInfoStats,
		nodeinfo.Software{
			Name:    instance.Software.Name,
			Version: instance.Software.String(),
		},
	) {
		r.HandleFunc(ph.Path, ph.Handler).Methods(http.MethodGet)
	}
	return r
}

func handleInbox(w http.ResponseWriter, req *http.Request, instance Instance, jobs *queue.PostgresStore) {
	// Body decoding and the call into receiver.Receive are the host
	// program's integration point: this composition root owns routing,
	// TLS, and the queue/deliverer/scheduler plumbing around it, not the
	// actor/object storage receiver.Dependencies closures reach into.
	http.Error(w, "not implemented", http.StatusNotImplemented)
}

// processIncomingQueue leases a batch of queued inbound activities and
// logs each one; the jobs are neither handed to the activity handlers
// nor completed. That step is left as a documented integration seam
// (see handleInbox) since running a handler requires the host program's
// concrete Store.
func processIncomingQueue(ctx context.Context, jobs *queue.PostgresStore) error {
	batch, err := jobs.Lease(queue.IncomingActivity, time.Now())
	if err != nil {
		return err
	}
	for _, job := range batch {
		InfoLogger.Infof("leased incoming activity job %s, awaiting host handler wiring", job.ID)
	}
	return nil
}

// Do not let clients downgrade connections to use insecure, older
// cryptographic functions or curves.
func createTlsConfig() *tls.Config {
	return &tls.Config{
		MinVersion:               tls.VersionTLS12,
		CurvePreferences:         []tls.CurveID{tls.CurveP256, tls.X25519},
		PreferServerCipherSuites: true,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
}

func createRedirectServer(c *config) *http.Server {
	return &http.Server{
		Addr:         ":http",
		ReadTimeout:  time.Duration(c.ServerConfig.RedirectReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(c.ServerConfig.RedirectWriteTimeoutSeconds) * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Connection", "close")
			http.Redirect(w, req, fmt.Sprintf("https://%s%s", c.ServerConfig.Host, req.URL), http.StatusMovedPermanently)
		}),
	}
}

func (s *server) start() error {
	if err := mustPingDatabase(s.db); err != nil {
		return err
	}
	s.rateLimiter.Start()
	s.scheduler.Start()
	go func() {
		InfoLogger.Infof("Starting http redirection server")
		err := s.httpServer.ListenAndServe()
		if err != http.ErrServerClosed {
			ErrorLogger.Errorf("Error shutting down http redirect server: %s", err)
		} else {
			InfoLogger.Infof("Http redirect server shutdown")
		}
	}()
	InfoLogger.Infof("Launching https server")
	err := s.httpsServer.ListenAndServeTLS(
		s.config.ServerConfig.CertFile,
		s.config.ServerConfig.KeyFile)
	if err != http.ErrServerClosed {
		ErrorLogger.Errorf("Error shutting down https server: %s", err)
	} else {
		InfoLogger.Infof("HTTPS server shutdown")
	}
	return nil
}

func (s *server) stop() {
	InfoLogger.Infof("Shutdown HTTPS server")
	s.httpsServer.Shutdown(context.Background())
}

func (s *server) onStop() {
	InfoLogger.Infof("Shutdown HTTP server")
	s.httpServer.Shutdown(context.Background())
	InfoLogger.Infof("Stop scheduler")
	s.scheduler.Stop()
	s.rateLimiter.Stop()
	InfoLogger.Infof("Close job store")
	if err := s.jobs.Close(); err != nil {
		ErrorLogger.Errorf("Error closing job store: %s", err)
	}
	InfoLogger.Infof("Close database")
	if err := s.db.Close(); err != nil {
		ErrorLogger.Errorf("Error closing database: %s", err)
	}
}
