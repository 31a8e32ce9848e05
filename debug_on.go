//go:build systemsdebug

package systems

const debugChecks = true
