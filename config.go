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
	"fmt"

	"github.com/relaysocial/apcore/deliverer"
	"github.com/relaysocial/apcore/importer"
	"gopkg.in/ini.v1"
)

const (
	postgresDB = "postgres"
)

// Overall configuration file structure
type config struct {
	ServerConfig      serverConfig      `ini:"server" comment:"HTTP server configuration"`
	DatabaseConfig    databaseConfig    `ini:"database" comment:"Database configuration"`
	ActivityPubConfig activityPubConfig `ini:"activitypub" comment:"ActivityPub configuration"`
	FederationConfig  federationConfig  `ini:"federation" comment:"Federation core tuning (ingress filter, egress pool, importer bounds)"`
	NodeInfoConfig    nodeInfoConfig    `ini:"nodeinfo" comment:"NodeInfo discovery configuration"`
}

func defaultConfig(dbkind string) (c *config, err error) {
	var dbc databaseConfig
	dbc, err = defaultDatabaseConfig(dbkind)
	if err != nil {
		return
	}
	c = &config{
		ServerConfig:      defaultServerConfig(),
		DatabaseConfig:    dbc,
		ActivityPubConfig: defaultActivityPubConfig(),
		FederationConfig:  defaultFederationConfig(),
		NodeInfoConfig:    defaultNodeInfoConfig(),
	}
	return
}

// Configuration section specifically for the HTTP server.
type serverConfig struct {
	Host                        string `ini:"sr_host" comment:"(required) Host with TLD for this instance (basically, the fully qualified domain or subdomain); ignored in debug mode"`
	HttpsReadTimeoutSeconds     int    `ini:"sr_https_read_timeout_seconds" comment:"Timeout in seconds for incoming HTTPS requests; a zero or unset value does not timeout"`
	HttpsWriteTimeoutSeconds    int    `ini:"sr_https_write_timeout_seconds" comment:"Timeout in seconds for outgoing HTTPS responses; a zero or unset value does not timeout"`
	RedirectReadTimeoutSeconds  int    `ini:"sr_redirect_read_timeout_seconds" comment:"Timeout in seconds for incoming HTTP requests, which will be redirected to HTTPS; a zero or unset value does not timeout"`
	RedirectWriteTimeoutSeconds int    `ini:"sr_redirect_write_timeout_seconds" comment:"Timeout in seconds for outgoing HTTP redirect-to-HTTPS responses; a zero or unset value does not timeout"`
	CertFile                    string `ini:"sr_cert_file" comment:"Path to the TLS certificate file"`
	KeyFile                     string `ini:"sr_key_file" comment:"Path to the TLS private key file"`
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		HttpsReadTimeoutSeconds:     60,
		HttpsWriteTimeoutSeconds:    60,
		RedirectReadTimeoutSeconds:  60,
		RedirectWriteTimeoutSeconds: 60,
	}
}

// Configuration tuning the federation core's ingress/egress behavior;
// the concrete spec components (filter, deliverer, importer, queue)
// read these at startup rather than hardcoding their own defaults.
type federationConfig struct {
	EgressConcurrency      int `ini:"fed_egress_concurrency" comment:"(default: 5) Maximum number of in-flight outbound deliveries at once, never more than one per host"`
	UnreachableHorizonDays int `ini:"fed_unreachable_horizon_days" comment:"(default: 7) Days a recipient can fail delivery before being marked unreachable and skipped"`
	MaxReplyDepth          int `ini:"fed_max_reply_depth" comment:"(default: 20) Maximum inReplyTo chain depth the importer will walk before giving up"`
	MaxCollectionItems     int `ini:"fed_max_collection_items" comment:"(default: 200) Maximum items fetched from a single replies/context collection"`
	PrivateMode            bool `ini:"fed_private_mode" comment:"(default: false) When true, suppresses all outbound delivery (still logs what would have been sent)"`
}

func defaultFederationConfig() federationConfig {
	return federationConfig{
		EgressConcurrency:      deliverer.DefaultConcurrency,
		UnreachableHorizonDays: 7,
		MaxReplyDepth:          importer.DefaultMaxReplyDepth,
		MaxCollectionItems:     importer.DefaultMaxCollectionItems,
	}
}

// Configuration section specifically for the database.
type databaseConfig struct {
	DatabaseKind              string         `ini:"db_database_kind" comment:"(required) Only \"postgres\" supported"`
	ConnMaxLifetimeSeconds    int            `ini:"db_conn_max_lifetime_seconds" comment:"(default: indefinite) Maximum lifetime of a connection in seconds; a value of zero or unset value means indefinite"`
	MaxOpenConns              int            `ini:"db_max_open_conns" comment:"(default: infinite) Maximum number of open connections to the database; a value of zero or unset value means infinite"`
	MaxIdleConns              int            `ini:"db_max_idle_conns" comment:"(default: 2) Maximum number of idle connections in the connection pool to the database; a value of zero maintains no idle connections; a value greater than max_open_conns is reduced to be equal to max_open_conns"`
	DefaultCollectionPageSize int            `ini:"db_default_collection_page_size" comment:"(default: 10) The default collection page size when fetching a page of an ActivityStreams collection"`
	PostgresConfig            postgresConfig `ini:"db_postgres,omitempty" comment:"Only needed if database_kind is postgres, and values are based on the github.com/lib/pq driver"`
}

func defaultDatabaseConfig(dbkind string) (d databaseConfig, err error) {
	d = databaseConfig{
		DatabaseKind: dbkind,
		// This default is implicit in Go but could change, so here we
		// make it explicit instead
		MaxIdleConns: 2,
		// This default is arbitrarily chosen
		DefaultCollectionPageSize: 10,
	}
	if dbkind != postgresDB {
		err = fmt.Errorf("unsupported database kind: %s", dbkind)
		return
	}
	d.PostgresConfig = defaultPostgresConfig()
	return
}

// Configuration section specifically for ActivityPub.
type activityPubConfig struct {
	ClockTimezone          string               `ini:"ap_clock_timezone" comment:"(default: UTC) Timezone for ActivityPub related operations: unset and \"UTC\" are UTC, \"Local\" is local server time, otherwise use IANA Time Zone database values"`
	OutboundRateLimitQPS                float64              `ini:"ap_outbound_rate_limit_qps" comment:"(default: 10) Global outbound rate limit for delivery of federated messages under steady state conditions; a negative value or value of zero is invalid"`
	OutboundRateLimitBurst              int                  `ini:"ap_outbound_rate_limit_burst" comment:"(default: 50) Global outbound burst tolerance for delivery of federated messages; a negative value or value of zero is invalid"`
	OutboundRateLimitPrunePeriodSeconds int                  `ini:"ap_outbound_rate_limit_prune_period_seconds" comment:"(default: 3600) How often idle per-host rate limiter entries are swept"`
	OutboundRateLimitPruneAgeSeconds    int                  `ini:"ap_outbound_rate_limit_prune_age_seconds" comment:"(default: 86400) How long a per-host rate limiter entry may sit unused before being swept"`
	HttpSignaturesConfig                httpSignaturesConfig `ini:"ap_http_signatures" comment:"HTTP Signatures configuration"`
}

func defaultActivityPubConfig() activityPubConfig {
	return activityPubConfig{
		ClockTimezone:                       "UTC",
		OutboundRateLimitQPS:                10,
		OutboundRateLimitBurst:              50,
		OutboundRateLimitPrunePeriodSeconds: 3600,
		OutboundRateLimitPruneAgeSeconds:    86400,
		HttpSignaturesConfig:                defaultHttpSignaturesConfig(),
	}
}

// Configuration section specifically for NodeInfo discovery.
type nodeInfoConfig struct {
	EnableNodeInfo              bool `ini:"ni_enable_nodeinfo" comment:"(default: true) Serve /.well-known/nodeinfo and /nodeinfo/{2.0,2.1}"`
	EnableAnonymousStatsSharing bool `ini:"ni_enable_anonymous_stats_sharing" comment:"(default: false) Populate NodeInfo's usage section with live, anonymized counts"`
}

func defaultNodeInfoConfig() nodeInfoConfig {
	return nodeInfoConfig{
		EnableNodeInfo: true,
	}
}

// Configuration for HTTP Signatures.
type httpSignaturesConfig struct {
	Algorithms      []string `ini:"http_sig_algorithms" comment:"(default: \"sha256,sha512\") Comma-separated list of algorithms used by the go-fed/httpsig library to sign outgoing HTTP signatures; the first algorithm in this list will be the one used to verify other peers' HTTP signatures"`
	DigestAlgorithm string   `ini:"http_sig_digest_algorithm" comment:"(default: \"SHA-256\") RFC ???? algorithm for use in signing header Digests"` // TODO: Find the Digest header RFC for reference
	GetHeaders      []string `ini:"http_sig_get_headers" comment:"(default: \"(request-target),Date,Digest\") Comma-separated list of HTTP headers to sign in GET requests; must contain \"(request-target)\", \"Date\", and \"Digest\""`
	PostHeaders     []string `ini:"http_sig_post_headers" comment:"(default: \"(request-target),Date,Digest\") Comma-separated list of HTTP headers to sign in POST requests; must contain \"(request-target)\", \"Date\", and \"Digest\""`
}

func defaultHttpSignaturesConfig() httpSignaturesConfig {
	return httpSignaturesConfig{
		Algorithms:      []string{"sha256", "sha512"},
		DigestAlgorithm: "SHA-256",
		GetHeaders:      []string{"(request-target)", "Date", "Digest"},
		PostHeaders:     []string{"(request-target)", "Date", "Digest"},
	}
}

// Configuration section specifically for Postgres databases.
type postgresConfig struct {
	DatabaseName            string `ini:"pg_db_name" comment:"(required) Database name"`
	UserName                string `ini:"pg_user" comment:"(required) User to connect as (any password will be prompted)"`
	Host                    string `ini:"pg_host" comment:"(default: localhost) The Postgres host to connect to"`
	Port                    int    `ini:"pg_port" comment:"(default: 5432) The port to connect to"`
	SSLMode                 string `ini:"pg_ssl_mode" comment:"(default: require) SSL mode to use when connecting (options are: \"disable\", \"require\", \"verify-ca\", \"verify-full\")"`
	FallbackApplicationName string `ini:"pg_fallback_application_name" comment:"An application_name to fall back to if one is not provided"`
	ConnectTimeout          int    `ini:"pg_connect_timeout" comment:"(default: indefinite) Maximum wait when connecting to a database, zero or unset means indefinite"`
	SSLCert                 string `ini:"pg_ssl_cert" comment:"PEM-encoded certificate file location"`
	SSLKey                  string `ini:"pg_ssl_key" comment:"PEM-encoded private key file location"`
	SSLRootCert             string `ini:"pg_ssl_root_cert" comment:"PEM-encoded root certificate file location"`
	Schema                  string `ini:"pg_schema" comment:"Postgres schema prefix to use"`
}

func defaultPostgresConfig() postgresConfig {
	return postgresConfig{}
}

func loadConfigFile(filename string, debug bool) (c *config, err error) {
	InfoLogger.Infof("Loading config file: %s", filename)
	var cfg *ini.File
	cfg, err = ini.Load(filename)
	if err != nil {
		return
	}
	c = &config{}
	err = cfg.MapTo(c)
	if err != nil {
		return
	}
	if debug {
		c.ServerConfig.Host = "localhost"
	}
	return
}

func saveConfigFile(filename string, c *config, others ...interface{}) error {
	InfoLogger.Infof("Saving config file: %s", filename)
	cfg := ini.Empty()
	err := ini.ReflectFrom(cfg, c)
	if err != nil {
		return err
	}
	for _, o := range others {
		err = ini.ReflectFrom(cfg, o)
		if err != nil {
			return err
		}
	}
	return cfg.SaveTo(filename)
}

func promptNewConfig(file string) (c *config, err error) {
	// TODO

	var s string
	s, err = promptSelection(
		"Please choose the database you are using",
		postgresDB)
	if err != nil {
		return
	}
	c, err = defaultConfig(s)
	if err != nil {
		return
	}

	// Prompt for ServerConfig
	c.ServerConfig.Host, err = promptStringWithDefault(
		"Enter the host for this server (ignored in debug mode)",
		"example.com")
	if err != nil {
		return
	}
	c.ServerConfig.CertFile, err = promptStringWithDefault(
		"Enter the TLS certificate file path",
		"cert.pem")
	if err != nil {
		return
	}
	c.ServerConfig.KeyFile, err = promptStringWithDefault(
		"Enter the TLS private key file path",
		"key.pem")
	if err != nil {
		return
	}
	c.ServerConfig.HttpsReadTimeoutSeconds, err = promptIntWithDefault(
		"Enter the deadline (in seconds) for reading & writing HTTP & HTTPS requests. A value of zero means connections do not timeout",
		60)
	if err != nil {
		return
	}
	c.ServerConfig.HttpsWriteTimeoutSeconds = c.ServerConfig.HttpsReadTimeoutSeconds
	c.ServerConfig.RedirectReadTimeoutSeconds = c.ServerConfig.HttpsReadTimeoutSeconds
	c.ServerConfig.RedirectWriteTimeoutSeconds = c.ServerConfig.HttpsReadTimeoutSeconds

	// Prompt for ActivityPubConfig
	// TODO

	// Prompt for DatabaseConfig
	c.DatabaseConfig.ConnMaxLifetimeSeconds, err = promptIntWithDefault(
		"Enter the maximum lifetime (in seconds) for database connections. A value of zero means connections do not timeout",
		60)
	if err != nil {
		return
	}
	c.DatabaseConfig.MaxOpenConns, err = promptIntWithDefault(
		"Enter the maximum number of database connections allowed. A value of zero means infinite are permitted.",
		0)

	switch c.DatabaseConfig.DatabaseKind {
	case postgresDB:
		err = promptPostgresConfig(c)
	default:
		err = fmt.Errorf("unknown database kind: %s", c.DatabaseConfig.DatabaseKind)
	}
	return
}

func promptPostgresConfig(c *config) (err error) {
	fmt.Println("Prompting for Postgres database configuration options...")
	c.DatabaseConfig.PostgresConfig.DatabaseName, err = promptStringWithDefault(
		"Enter the postgres database name",
		"pgdb")
	if err != nil {
		return
	}
	c.DatabaseConfig.PostgresConfig.UserName, err = promptStringWithDefault(
		"Enter the postgres user name",
		"pguser")
	if err != nil {
		return
	}
	c.DatabaseConfig.PostgresConfig.Host, err = promptStringWithDefault(
		"Enter the postgres database host name",
		"localhost")
	if err != nil {
		return
	}
	c.DatabaseConfig.PostgresConfig.Port, err = promptIntWithDefault(
		"Enter the postgres database port",
		5432)
	if err != nil {
		return
	}
	c.DatabaseConfig.PostgresConfig.SSLMode, err = promptSelection(
		"Please choose a SSL mode (see https://www.postgresql.org/docs/current/libpq-ssl.html)",
		"disable",
		"require",
		"verify-ca",
		"verify-full")
	if err != nil {
		return
	}
	if mode := c.DatabaseConfig.PostgresConfig.SSLMode; mode == "require" || mode == "verify-ca" || mode == "verify-full" {
		fmt.Println(clarkeSays(fmt.Sprintf(`
Hey, Clarke the Cow here, I noticed you chose %q! Be sure to check your
configuration file for the %q, %q, and/or %q options to get SSL set up properly!
Toodlemoo~`,
			mode,
			"pg_ssl_cert",
			"pg_ssl_key",
			"pg_ssl_root_cert")))
	}
	return
}
