// Package main (cmd/credserver) runs the credential store server.
//
// On start it validates its configuration, connects to the configured
// key-value store and bootstraps the users/ namespace together with the
// default administrator when the namespace does not exist yet. Only then does
// it begin serving the user API. A failed bootstrap aborts the process.
//
// The store location, administrator name and password and the ephemeral switch
// can be given as flags or through the ETCD_URI, ADMIN_NAME, ADMIN_PASSWD and
// CREDSTORE_EPHEMERAL environment variables.
//
// Example usage:
//
//	ETCD_URI=http://127.0.0.1:2379 ADMIN_PASSWD=changeme credserver \
//	    --listen-addr=0.0.0.0:8080 --log-json
package main
