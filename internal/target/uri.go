package target

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ugdata/mysql2mongo/internal/conf"
)

// BuildURI constructs the MongoDB connection string for the configured
// topology: single node, replica set or sharded cluster (a list of mongos
// routers).
func BuildURI(cfg *conf.TargetSettings) string {
	username := url.QueryEscape(cfg.Username)
	password := escapePassword(cfg.Password)

	switch cfg.ConnectionType {
	case "replica_set", "sharded_cluster":
		hosts := hostList(cfg)
		if len(hosts) == 0 {
			return singleNodeURI(cfg, username, password)
		}
		uri := uriPrefix(username, password) + strings.Join(hosts, ",") + "/"
		params := []string{"authSource=" + authSource(cfg)}
		if cfg.ConnectionType == "replica_set" && cfg.ReplicaSet != "" {
			params = append([]string{"replicaSet=" + cfg.ReplicaSet}, params...)
		}
		params = append(params, extraOptions(cfg)...)
		return uri + "?" + strings.Join(params, "&")
	default:
		return singleNodeURI(cfg, username, password)
	}
}

// RedactURI replaces the password in a connection string for logging.
func RedactURI(uri string) string {
	at := strings.Index(uri, "@")
	scheme := strings.Index(uri, "://")
	if at < 0 || scheme < 0 {
		return uri
	}
	creds := uri[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		creds = creds[:colon] + ":***"
	}
	return uri[:scheme+3] + creds + uri[at:]
}

// escapePassword percent-encodes the password unless it already contains
// percent-encoded characters, to avoid double encoding.
func escapePassword(password string) string {
	if strings.Contains(password, "%") {
		return password
	}
	return url.QueryEscape(password)
}

func uriPrefix(username, password string) string {
	if username != "" && password != "" {
		return fmt.Sprintf("mongodb://%s:%s@", username, password)
	}
	return "mongodb://"
}

func singleNodeURI(cfg *conf.TargetSettings, username, password string) string {
	uri := uriPrefix(username, password) + fmt.Sprintf("%s:%d/", cfg.Host, cfg.Port)
	params := []string{}
	if username != "" && password != "" {
		params = append(params, "authSource="+authSource(cfg))
	}
	params = append(params, extraOptions(cfg)...)
	if len(params) > 0 {
		uri += "?" + strings.Join(params, "&")
	}
	return uri
}

func hostList(cfg *conf.TargetSettings) []string {
	hosts := make([]string, 0, len(cfg.Hosts))
	for _, h := range cfg.Hosts {
		if h.Host == "" {
			continue
		}
		port := h.Port
		if port == 0 {
			port = 27017
		}
		hosts = append(hosts, fmt.Sprintf("%s:%d", h.Host, port))
	}
	return hosts
}

func authSource(cfg *conf.TargetSettings) string {
	if cfg.AuthSource != "" {
		return cfg.AuthSource
	}
	return "admin"
}

// extraOptions renders additional URI options in a deterministic order.
// Timeout options are excluded: those are applied through client options.
func extraOptions(cfg *conf.TargetSettings) []string {
	if len(cfg.Options) == 0 {
		return nil
	}
	keys := make([]string, 0, len(cfg.Options))
	for k := range cfg.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	opts := make([]string, 0, len(keys))
	for _, k := range keys {
		opts = append(opts, k+"="+cfg.Options[k])
	}
	return opts
}
