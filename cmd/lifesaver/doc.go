// Package main hosts the lifesaver CLI.
//
// The recorder itself runs under "lifesaver run". Every other command either
// talks to a running recorder over its unix socket (status, trigger,
// test-notify) or reads the on-disk state it leaves behind (events, logs),
// so history stays inspectable while the recorder is stopped. The "receive"
// command runs the upload receiver on the machine that collects events.
package main
