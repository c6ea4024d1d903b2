// Package cli implements the dozer command-line interface.
//
// There are two kinds of commands. "dozer serve" runs the gateway itself:
// it loads the config, starts the monitor loop, and serves the control API
// and the proxy on one listener. Everything else is a thin client of a
// running gateway:
//
//	dozer status   - one-shot status, or --json for scripts
//	dozer wake     - send Wake-on-LAN, optionally --wait for the service
//	dozer sleep    - suspend the target now
//	dozer watch    - live dashboard fed by the event stream
//	dozer autosleep - read or change the auto-sleep policy
//	dozer init     - write a config file
//
// Client commands find the gateway through --server or DOZER_SERVER.
package cli
