// Package daemonctl starts, stops and restarts a background recorder
// process. It finds a running recorder through the instance lock and pid
// file in the state directory and talks to it over the IPC socket.
package daemonctl
